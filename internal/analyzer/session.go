package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/mcpdir/mcpdir/internal/models"
)

// DefaultDebounce is how long a Session waits after the last Update before
// starting an analysis.
const DefaultDebounce = 400 * time.Millisecond

// SnapshotFunc supplies the listings a session compares candidates against.
// Errors are not part of the contract: a source that cannot produce a
// snapshot returns nil and the report simply carries no similar listings.
type SnapshotFunc func(ctx context.Context) []*models.Listing

// Session runs live analysis for one in-progress submission. Every Update
// restarts the debounce timer and supersedes any analysis already running,
// so the report a caller eventually sees always reflects the latest
// candidate (last issued wins).
type Session struct {
	analyzer *Analyzer
	source   SnapshotFunc
	debounce time.Duration

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	report  *models.AnalysisReport
	current bool
	ready   chan struct{}
	closed  bool
}

// NewSession creates a session over an analyzer and snapshot source. A
// non-positive debounce falls back to DefaultDebounce.
func NewSession(a *Analyzer, source SnapshotFunc, debounce time.Duration) *Session {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Session{
		analyzer: a,
		source:   source,
		debounce: debounce,
	}
}

// Update records a new candidate draft. Any pending or running analysis for
// an earlier draft is cancelled and its result discarded.
func (s *Session) Update(candidate *models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	seq := s.seq
	s.current = false
	s.ready = make(chan struct{})
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.run(seq, candidate)
	})
}

func (s *Session) run(seq uint64, candidate *models.Listing) {
	s.mu.Lock()
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	ready := s.ready
	s.mu.Unlock()
	defer cancel()

	var snapshot []*models.Listing
	if s.source != nil {
		snapshot = s.source(ctx)
	}
	report := s.analyzer.Analyze(ctx, candidate, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || seq != s.seq {
		return // superseded while running
	}
	s.report = report
	s.current = true
	close(ready)
}

// Report returns the analysis for the latest Update. If that analysis is
// still pending it waits until the report lands or ctx expires; on expiry it
// reports ok=false so callers can proceed without a report.
func (s *Session) Report(ctx context.Context) (*models.AnalysisReport, bool) {
	s.mu.Lock()
	if s.current {
		r := s.report
		s.mu.Unlock()
		return r, true
	}
	if s.seq == 0 || s.closed {
		s.mu.Unlock()
		return nil, false
	}
	ready := s.ready
	s.mu.Unlock()

	select {
	case <-ready:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.report, s.current
	case <-ctx.Done():
		return nil, false
	}
}

// Close cancels any pending work. Further Updates are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
