package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpdir/mcpdir/internal/analyzer"
	"github.com/mcpdir/mcpdir/internal/intake"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/moderation"
	"github.com/mcpdir/mcpdir/internal/store"
)

type testEnv struct {
	server   *httptest.Server
	store    *store.SQLiteStore
	workflow *moderation.Workflow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	a := analyzer.New()
	w := moderation.New(s)
	in := intake.New(w, intake.WithAnalyzer(a, nil))

	srv := httptest.NewServer(NewServer(s, in, w, a).Router())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return &testEnv{server: srv, store: s, workflow: w}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func validSubmission(name string) map[string]any {
	return map[string]any{
		"name":             name,
		"category":         "server",
		"shortDescription": "Serves live weather data to MCP-compatible clients",
		"longDescription":  "A full-featured weather data server with caching, rate limiting, and support for several upstream providers.",
		"version":          "1.0.0",
		"maintainer":       "Weather Team",
		"license":          "MIT",
		"tags":             []string{"weather", "api"},
		"links": []map[string]string{
			{"kind": "website", "url": "https://example.com"},
		},
		"submittedBy": "developer123",
	}
}

func (e *testEnv) submit(t *testing.T, name string) *models.Listing {
	t.Helper()
	resp := e.postJSON(t, "/api/v1/submissions", validSubmission(name))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	l := decode[*models.Listing](t, resp)
	return l
}

func (e *testEnv) approve(t *testing.T, id string) {
	t.Helper()
	resp := e.postJSON(t, "/api/v1/review/"+id+"/approve", map[string]string{"decidedBy": "mod"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateSubmission(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/submissions", validSubmission("Weather Server"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	listing := decode[*models.Listing](t, resp)
	assert.NotEmpty(t, listing.ID)
	assert.Equal(t, models.StatusPending, listing.Status)
	require.NotNil(t, listing.Analysis, "analysis snapshot attached on submit")
	assert.NotNil(t, listing.Analysis.QualityScore)
}

func TestCreateSubmission_FieldErrors(t *testing.T) {
	env := newTestEnv(t)

	body := validSubmission("x")
	body["submittedBy"] = ""
	resp := env.postJSON(t, "/api/v1/submissions", body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload := decode[map[string]any](t, resp)
	fields, ok := payload["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "submittedBy")
}

func TestCreateSubmission_MinimalBody(t *testing.T) {
	env := newTestEnv(t)

	// Missing license and long description lower the score; they do not
	// block the submission.
	resp := env.postJSON(t, "/api/v1/submissions", map[string]any{
		"name":             "Foo",
		"category":         "Server",
		"shortDescription": "A tool",
		"submittedBy":      "alice",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	listing := decode[*models.Listing](t, resp)
	assert.Equal(t, models.StatusPending, listing.Status)
	require.NotNil(t, listing.Analysis)
	assert.NotEmpty(t, listing.Analysis.Issues)
}

func TestCreateSubmission_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/api/v1/submissions", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyzeSubmission(t *testing.T) {
	env := newTestEnv(t)

	// Incomplete submissions still analyze without error
	resp := env.postJSON(t, "/api/v1/submissions/analyze", map[string]any{
		"name":             "Bare Server",
		"category":         "server",
		"shortDescription": "too short",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[*models.AnalysisReport](t, resp)
	require.NotNil(t, report.QualityScore)
	assert.Less(t, *report.QualityScore, 1.0)
	assert.NotEmpty(t, report.Issues)
}

func TestAnalyzeSubmission_FindsSimilar(t *testing.T) {
	env := newTestEnv(t)

	existing := env.submit(t, "OpenMCP Server")
	env.approve(t, existing.ID)

	resp := env.postJSON(t, "/api/v1/submissions/analyze", validSubmission("Open MCP Server"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[*models.AnalysisReport](t, resp)
	require.Len(t, report.Similar, 1)
	assert.Equal(t, existing.ID, report.Similar[0].ListingID)
}

func TestQueryCatalog_ApprovedOnly(t *testing.T) {
	env := newTestEnv(t)

	approved := env.submit(t, "Visible Server")
	env.approve(t, approved.ID)
	env.submit(t, "Pending Server")

	resp := env.get(t, "/api/v1/catalog")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[struct {
		Items      []*models.Listing `json:"items"`
		TotalCount int               `json:"totalCount"`
	}](t, resp)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Visible Server", result.Items[0].Name)
	assert.Equal(t, 1, result.TotalCount)
}

func TestQueryCatalog_SearchAndPaging(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		l := env.submit(t, fmt.Sprintf("Weather Node %d", i))
		env.approve(t, l.ID)
	}
	other := env.submit(t, "Unrelated Tool")
	env.approve(t, other.ID)

	resp := env.get(t, "/api/v1/catalog?search=node&sortBy=name&page=2&pageSize=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[map[string]any](t, resp)
	assert.Equal(t, float64(3), result["totalCount"])
	assert.Len(t, result["items"], 1)
}

func TestQueryCatalog_BadSortKey(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/api/v1/catalog?sortBy=bogus")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryCatalog_StripsModeratorNotes(t *testing.T) {
	env := newTestEnv(t)

	l := env.submit(t, "Noted Server")
	resp := env.postJSON(t, "/api/v1/review/"+l.ID+"/approve", map[string]string{
		"decidedBy": "mod",
		"notes":     "internal note about the submitter",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/api/v1/catalog/" + l.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	public := decode[*models.Listing](t, resp)
	require.NotNil(t, public.Decision)
	assert.Empty(t, public.Decision.ModeratorNotes)

	// The moderator surface still carries the notes
	resp = env.get(t, "/api/v1/review/" + l.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	full := decode[*models.Listing](t, resp)
	require.NotNil(t, full.Decision)
	assert.Equal(t, "internal note about the submitter", full.Decision.ModeratorNotes)
}

func TestGetCatalogListing_PendingIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	l := env.submit(t, "Hidden Server")
	resp := env.get(t, "/api/v1/catalog/" + l.ID)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReviewQueue(t *testing.T) {
	env := newTestEnv(t)

	env.submit(t, "Queue Entry A")
	env.submit(t, "Queue Entry B")
	approved := env.submit(t, "Already Decided")
	env.approve(t, approved.ID)

	resp := env.get(t, "/api/v1/review/queue")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[map[string]any](t, resp)
	assert.Len(t, result["items"], 2, "defaults to pending")

	counts, ok := result["counts"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), counts["pending"])
	assert.Equal(t, float64(1), counts["approved"])
}

func TestReviewQueue_SubmitterSearch(t *testing.T) {
	env := newTestEnv(t)

	env.submit(t, "Some Server")

	resp := env.get(t, "/api/v1/review/queue?search=developer123")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[map[string]any](t, resp)
	assert.Len(t, result["items"], 1)
}

func TestApproveListing(t *testing.T) {
	env := newTestEnv(t)

	l := env.submit(t, "To Approve")
	resp := env.postJSON(t, "/api/v1/review/"+l.ID+"/approve", map[string]string{"decidedBy": "mod1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approved := decode[*models.Listing](t, resp)
	assert.Equal(t, models.StatusApproved, approved.Status)
	require.NotNil(t, approved.Decision)
	assert.Equal(t, "mod1", approved.Decision.DecidedBy)
}

func TestRejectListing_RequiresReason(t *testing.T) {
	env := newTestEnv(t)

	l := env.submit(t, "To Reject")
	resp := env.postJSON(t, "/api/v1/review/"+l.ID+"/reject", map[string]string{"decidedBy": "mod1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	payload := decode[map[string]any](t, resp)
	fields, ok := payload["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "rejectionReason")

	resp = env.postJSON(t, "/api/v1/review/"+l.ID+"/reject", map[string]string{
		"decidedBy": "mod1",
		"reason":    "not MCP-compatible",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rejected := decode[*models.Listing](t, resp)
	assert.Equal(t, models.StatusRejected, rejected.Status)
}

func TestDecision_ConflictOnSecondDecision(t *testing.T) {
	env := newTestEnv(t)

	l := env.submit(t, "Contested")
	env.approve(t, l.ID)

	resp := env.postJSON(t, "/api/v1/review/"+l.ID+"/reject", map[string]string{
		"decidedBy": "mod2",
		"reason":    "duplicate",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDecision_UnknownListing(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/review/does-not-exist/approve", map[string]string{"decidedBy": "mod"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListingHistory(t *testing.T) {
	env := newTestEnv(t)

	l := env.submit(t, "Audited")
	env.approve(t, l.ID)

	resp := env.get(t, "/api/v1/review/" + l.ID + "/history")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	revisions := decode[[]*models.Revision](t, resp)
	require.Len(t, revisions, 2)
	assert.Equal(t, models.StatusPending, revisions[0].Status)
	assert.Equal(t, models.StatusApproved, revisions[1].Status)

	resp = env.get(t, "/api/v1/review/missing/history")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
