package moderation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/store"
)

func newTestWorkflow(t *testing.T) *Workflow {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func candidate(name string) *models.Listing {
	return &models.Listing{
		Name:             name,
		Category:         models.CategoryServer,
		ShortDescription: "a short description",
		SubmittedBy:      "dev",
	}
}

func TestSubmit_AttachesAnalysisSnapshot(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	score := 0.72
	report := &models.AnalysisReport{
		QualityScore: &score,
		Issues:       []string{"Missing detailed description"},
	}
	c := candidate("with-report")
	require.NoError(t, w.Submit(ctx, c, report))

	got, err := w.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	require.NotNil(t, got.Analysis)
	assert.InDelta(t, 0.72, *got.Analysis.QualityScore, 1e-9)
}

func TestSubmit_NilReport(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	c := candidate("no-report")
	require.NoError(t, w.Submit(ctx, c, nil))

	got, err := w.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Analysis)
}

func TestApproveAndReject(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	a := candidate("to-approve")
	require.NoError(t, w.Submit(ctx, a, nil))
	got, err := w.Approve(ctx, a.ID, "mod1", "good listing")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "good listing", got.Decision.ModeratorNotes)

	r := candidate("to-reject")
	require.NoError(t, w.Submit(ctx, r, nil))
	got, err = w.Reject(ctx, r.ID, "mod1", "duplicate listing", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, "duplicate listing", got.Decision.RejectionReason)
}

func TestDecisionHooksFiredOnTerminalTransitions(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	var seen []string
	w.OnDecision(func(ctx context.Context, l *models.Listing) {
		seen = append(seen, l.Name+":"+string(l.Status))
	})

	a := candidate("hooked-approve")
	require.NoError(t, w.Submit(ctx, a, nil))
	_, err := w.Approve(ctx, a.ID, "mod", "")
	require.NoError(t, err)

	r := candidate("hooked-reject")
	require.NoError(t, w.Submit(ctx, r, nil))
	_, err = w.Reject(ctx, r.ID, "mod", "off topic", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"hooked-approve:approved", "hooked-reject:rejected"}, seen)
}

func TestDecisionHooksNotFiredOnFailure(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	fired := 0
	w.OnDecision(func(ctx context.Context, l *models.Listing) { fired++ })

	c := candidate("once")
	require.NoError(t, w.Submit(ctx, c, nil))
	_, err := w.Approve(ctx, c.ID, "mod", "")
	require.NoError(t, err)

	// Second decision fails; the hook must not fire again.
	_, err = w.Reject(ctx, c.ID, "mod", "changed my mind", "")
	var it *models.InvalidTransitionError
	require.ErrorAs(t, err, &it)
	assert.Equal(t, 1, fired)
}

func TestPanickingHookDoesNotBreakDecision(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	w.OnDecision(func(ctx context.Context, l *models.Listing) { panic("collaborator bug") })
	calm := 0
	w.OnDecision(func(ctx context.Context, l *models.Listing) { calm++ })

	c := candidate("resilient")
	require.NoError(t, w.Submit(ctx, c, nil))
	got, err := w.Approve(ctx, c.ID, "mod", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, 1, calm, "later hooks still run")
}

func TestQueueCounts(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Submit(ctx, candidate("pending"), nil))
	}
	a := candidate("approved")
	require.NoError(t, w.Submit(ctx, a, nil))
	_, err := w.Approve(ctx, a.ID, "mod", "")
	require.NoError(t, err)

	counts, err := w.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StatusPending])
	assert.Equal(t, 1, counts[models.StatusApproved])
	assert.Equal(t, 0, counts[models.StatusRejected])
}

func TestHistory(t *testing.T) {
	w := newTestWorkflow(t)
	ctx := context.Background()

	c := candidate("audited")
	require.NoError(t, w.Submit(ctx, c, nil))
	_, err := w.Reject(ctx, c.ID, "mod", "not an MCP project", "")
	require.NoError(t, err)

	revs, err := w.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, models.StatusPending, revs[0].Status)
	assert.Equal(t, models.StatusRejected, revs[1].Status)
}
