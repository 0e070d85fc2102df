package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcpdir/mcpdir/internal/analyzer"
	"github.com/mcpdir/mcpdir/internal/catalog"
	"github.com/mcpdir/mcpdir/internal/intake"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/moderation"
	"github.com/mcpdir/mcpdir/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	engine   *catalog.Engine
	intake   *intake.Intake
	workflow *moderation.Workflow
	analyzer *analyzer.Analyzer
}

// NewServer creates a new API server.
func NewServer(s store.Store, in *intake.Intake, w *moderation.Workflow, a *analyzer.Analyzer) *Server {
	return &Server{
		store:    s,
		engine:   catalog.NewEngine(s),
		intake:   in,
		workflow: w,
		analyzer: a,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/submissions", s.createSubmission)
	mux.HandleFunc("POST /api/v1/submissions/analyze", s.analyzeSubmission)

	mux.HandleFunc("GET /api/v1/catalog", s.queryCatalog)
	mux.HandleFunc("GET /api/v1/catalog/{id}", s.getCatalogListing)

	mux.HandleFunc("GET /api/v1/review/queue", s.reviewQueue)
	mux.HandleFunc("GET /api/v1/review/{id}", s.getReviewListing)
	mux.HandleFunc("GET /api/v1/review/{id}/history", s.listingHistory)
	mux.HandleFunc("POST /api/v1/review/{id}/approve", s.approveListing)
	mux.HandleFunc("POST /api/v1/review/{id}/reject", s.rejectListing)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses:
// validation 400 with field details, not found 404, invalid transition 409.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": ve.Fields,
		})
		return
	}
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Error())
		return
	}
	var it *models.InvalidTransitionError
	if errors.As(err, &it) {
		writeError(w, http.StatusConflict, it.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// publicView strips moderator-only data from a listing before it leaves the
// public catalog surface.
func publicView(l *models.Listing) *models.Listing {
	if l.Decision == nil || l.Decision.ModeratorNotes == "" {
		return l
	}
	out := *l
	decision := *l.Decision
	decision.ModeratorNotes = ""
	out.Decision = &decision
	return &out
}

// --- Submissions ---

func (s *Server) createSubmission(w http.ResponseWriter, r *http.Request) {
	var c intake.Candidate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	listing, err := s.intake.Submit(r.Context(), &c)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (s *Server) analyzeSubmission(w http.ResponseWriter, r *http.Request) {
	var c intake.Candidate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	candidate := intake.Normalize(&c).Listing()
	snapshot, err := s.store.ListListings(r.Context(), []models.ListingStatus{models.StatusApproved})
	if err != nil {
		snapshot = nil // analysis still runs, just without similarity
	}
	report := s.analyzer.Analyze(r.Context(), candidate, snapshot)
	writeJSON(w, http.StatusOK, report)
}

// --- Catalog ---

func (s *Server) queryCatalog(w http.ResponseWriter, r *http.Request) {
	opts := queryOptions(r)
	opts.Statuses = nil // approved only
	opts.MatchSubmitter = false

	result, err := s.engine.Query(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for i, l := range result.Items {
		result.Items[i] = publicView(l)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getCatalogListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	listing, err := s.store.GetListing(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Only approved listings are public
	if listing.Status != models.StatusApproved {
		writeDomainError(w, &models.NotFoundError{ID: id})
		return
	}
	writeJSON(w, http.StatusOK, publicView(listing))
}

// --- Review ---

func (s *Server) reviewQueue(w http.ResponseWriter, r *http.Request) {
	opts := queryOptions(r)
	opts.MatchSubmitter = true
	opts.Statuses = parseStatuses(r.URL.Query().Get("statuses"))
	if len(opts.Statuses) == 0 {
		opts.Statuses = []models.ListingStatus{models.StatusPending}
	}

	result, err := s.engine.Query(r.Context(), opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	counts, err := s.workflow.QueueCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":      result.Items,
		"totalCount": result.TotalCount,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"counts":     counts,
	})
}

func (s *Server) getReviewListing(w http.ResponseWriter, r *http.Request) {
	listing, err := s.workflow.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) listingHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.workflow.Get(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	revisions, err := s.workflow.History(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if revisions == nil {
		revisions = []*models.Revision{}
	}
	writeJSON(w, http.StatusOK, revisions)
}

type decisionRequest struct {
	DecidedBy string `json:"decidedBy"`
	Reason    string `json:"reason"`
	Notes     string `json:"notes"`
}

func (s *Server) approveListing(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.DecidedBy == "" {
		writeError(w, http.StatusBadRequest, "decidedBy is required")
		return
	}
	listing, err := s.workflow.Approve(r.Context(), r.PathValue("id"), req.DecidedBy, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) rejectListing(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.DecidedBy == "" {
		writeError(w, http.StatusBadRequest, "decidedBy is required")
		return
	}
	listing, err := s.workflow.Reject(r.Context(), r.PathValue("id"), req.DecidedBy, req.Reason, req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// --- Query parsing ---

func queryOptions(r *http.Request) catalog.Options {
	q := r.URL.Query()
	opts := catalog.Options{
		Search:   q.Get("search"),
		Category: q.Get("type"),
		SortBy:   q.Get("sortBy"),
		Order:    q.Get("order"),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = page
	}
	if size, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		opts.PageSize = size
	}
	return opts
}

func parseStatuses(raw string) []models.ListingStatus {
	var statuses []models.ListingStatus
	for _, st := range strings.Split(raw, ",") {
		switch models.ListingStatus(strings.TrimSpace(st)) {
		case models.StatusPending:
			statuses = append(statuses, models.StatusPending)
		case models.StatusApproved:
			statuses = append(statuses, models.StatusApproved)
		case models.StatusRejected:
			statuses = append(statuses, models.StatusRejected)
		}
	}
	return statuses
}
