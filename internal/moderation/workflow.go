// Package moderation drives listings through the pending → approved|rejected
// state machine. Terminal states are immutable; the store enforces the single
// winner when decisions race on the same listing.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/store"
)

// DecisionHook runs after a successful terminal transition. The listing
// passed in already carries its decision. Hooks must not mutate it.
type DecisionHook func(ctx context.Context, listing *models.Listing)

// Workflow coordinates submissions and moderation decisions over a store.
type Workflow struct {
	store  store.Store
	logger *slog.Logger

	mu    sync.RWMutex
	hooks []DecisionHook
}

func New(s store.Store) *Workflow {
	return &Workflow{store: s, logger: slog.Default()}
}

// OnDecision registers a hook fired after every approve or reject. External
// collaborators (governance, rewards) subscribe here.
func (w *Workflow) OnDecision(hook DecisionHook) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks = append(w.hooks, hook)
}

// Submit enters a candidate into the queue as pending, attaching report as
// the analysis snapshot moderators will see. A nil report is fine; the
// listing simply carries no analysis.
func (w *Workflow) Submit(ctx context.Context, candidate *models.Listing, report *models.AnalysisReport) error {
	candidate.Analysis = report
	if err := w.store.CreateListing(ctx, candidate); err != nil {
		return fmt.Errorf("submitting listing: %w", err)
	}
	return nil
}

// Approve moves a pending listing to approved.
func (w *Workflow) Approve(ctx context.Context, id, decidedBy, notes string) (*models.Listing, error) {
	listing, err := w.store.ApplyDecision(ctx, id, store.DecisionInput{
		Approve:        true,
		DecidedBy:      decidedBy,
		ModeratorNotes: notes,
	})
	if err != nil {
		return nil, err
	}
	w.fireHooks(ctx, listing)
	return listing, nil
}

// Reject moves a pending listing to rejected. The reason is required and
// recorded for the submitter.
func (w *Workflow) Reject(ctx context.Context, id, decidedBy, reason, notes string) (*models.Listing, error) {
	listing, err := w.store.ApplyDecision(ctx, id, store.DecisionInput{
		DecidedBy:       decidedBy,
		RejectionReason: reason,
		ModeratorNotes:  notes,
	})
	if err != nil {
		return nil, err
	}
	w.fireHooks(ctx, listing)
	return listing, nil
}

// Get returns a listing with its full moderation record.
func (w *Workflow) Get(ctx context.Context, id string) (*models.Listing, error) {
	return w.store.GetListing(ctx, id)
}

// History returns the append-only revision trail for a listing.
func (w *Workflow) History(ctx context.Context, id string) ([]*models.Revision, error) {
	return w.store.ListRevisions(ctx, id)
}

// QueueCounts returns how many listings sit in each status.
func (w *Workflow) QueueCounts(ctx context.Context) (map[models.ListingStatus]int, error) {
	listings, err := w.store.ListListings(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("counting queue: %w", err)
	}
	counts := make(map[models.ListingStatus]int, 3)
	for _, l := range listings {
		counts[l.Status]++
	}
	return counts, nil
}

// fireHooks runs registered hooks in order. A panicking hook is logged and
// skipped so one collaborator cannot break the decision path.
func (w *Workflow) fireHooks(ctx context.Context, listing *models.Listing) {
	w.mu.RLock()
	hooks := make([]DecisionHook, len(w.hooks))
	copy(hooks, w.hooks)
	w.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Warn("decision hook panicked", "listing", listing.ID, "panic", fmt.Sprint(r))
				}
			}()
			hook(ctx, listing)
		}()
	}
}
