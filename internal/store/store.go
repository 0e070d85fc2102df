package store

import (
	"context"

	"github.com/mcpdir/mcpdir/internal/models"
)

// DecisionInput carries a moderator verdict into ApplyDecision.
type DecisionInput struct {
	Approve         bool
	DecidedBy       string
	RejectionReason string
	ModeratorNotes  string
}

// Store defines the persistence interface for the directory. The store
// exclusively owns listing identity and status; ApplyDecision is atomic per
// listing id, so two racing decisions produce exactly one winner.
type Store interface {
	// CreateListing assigns an id, forces status to pending, stamps
	// SubmittedAt, and appends the initial audit revision.
	CreateListing(ctx context.Context, l *models.Listing) error
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	// ListListings returns listings in insertion order. An empty status set
	// means all statuses.
	ListListings(ctx context.Context, statuses []models.ListingStatus) ([]*models.Listing, error)
	// ApplyDecision moves a pending listing to its terminal status. It fails
	// with *models.NotFoundError for unknown ids, *models.InvalidTransitionError
	// when the listing is no longer pending, and *models.ValidationError when
	// a rejection carries no reason.
	ApplyDecision(ctx context.Context, id string, in DecisionInput) (*models.Listing, error)
	// SetCatalogMetadata updates the externally-fed rating fields.
	SetCatalogMetadata(ctx context.Context, id string, rating float64, reviewCount int) error
	ListRevisions(ctx context.Context, listingID string) ([]*models.Revision, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
