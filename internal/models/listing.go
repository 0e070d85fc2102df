package models

import "time"

// ListingStatus represents where a listing is in the moderation lifecycle.
type ListingStatus string

const (
	StatusPending  ListingStatus = "pending"
	StatusApproved ListingStatus = "approved"
	StatusRejected ListingStatus = "rejected"
)

// Terminal reports whether the status admits no further transitions.
func (s ListingStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Category represents the kind of resource a listing describes.
type Category string

const (
	CategoryServer      Category = "server"
	CategoryApplication Category = "application"
	CategoryTool        Category = "tool"
)

// Categories lists every valid category value.
func Categories() []Category {
	return []Category{CategoryServer, CategoryApplication, CategoryTool}
}

// LinkKind identifies a link slot on a listing. Kinds are unique per listing.
type LinkKind string

const (
	LinkWebsite       LinkKind = "website"
	LinkGitHub        LinkKind = "github"
	LinkDocumentation LinkKind = "documentation"
)

// Listing is a submitted server/application/tool record tracked through the
// moderation lifecycle. ID is assigned by the store and immutable, as are
// SubmittedBy and SubmittedAt.
type Listing struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Category         Category            `json:"category"`
	ShortDescription string              `json:"shortDescription"`
	LongDescription  string              `json:"longDescription,omitempty"`
	Requirements     string              `json:"requirements,omitempty"`
	Version          string              `json:"version,omitempty"`
	Maintainer       string              `json:"maintainer,omitempty"`
	License          string              `json:"license,omitempty"`
	Tags             []string            `json:"tags,omitempty"`
	Links            map[LinkKind]string `json:"links,omitempty"`

	Status      ListingStatus `json:"status"`
	SubmittedBy string        `json:"submittedBy"`
	SubmittedAt time.Time     `json:"submittedAt"`

	// Catalog metadata fed by the external rating collaborator. Zero until
	// the collaborator reports; drives the rating/popularity sorts.
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"reviewCount"`

	// Analysis is the advisory report snapshot taken at submission time.
	// It is never recomputed after the listing enters the queue.
	Analysis *AnalysisReport `json:"analysis,omitempty"`

	// Decision is present if and only if Status is terminal.
	Decision *Decision `json:"decision,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Decision records a moderator's terminal verdict on a listing.
// RejectionReason is non-empty if and only if the listing was rejected.
// ModeratorNotes are internal and must never reach public views.
type Decision struct {
	DecidedBy       string    `json:"decidedBy"`
	DecidedAt       time.Time `json:"decidedAt"`
	RejectionReason string    `json:"rejectionReason,omitempty"`
	ModeratorNotes  string    `json:"moderatorNotes,omitempty"`
}

// Revision is one append-only audit entry for a listing. Revisions are
// written by the store alongside every state change and never modified.
type Revision struct {
	ID        string        `json:"id"`
	ListingID string        `json:"listingId"`
	Status    ListingStatus `json:"status"`
	Actor     string        `json:"actor"`
	Note      string        `json:"note,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}
