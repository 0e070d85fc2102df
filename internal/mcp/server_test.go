package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpdir/mcpdir/internal/analyzer"
	"github.com/mcpdir/mcpdir/internal/intake"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/moderation"
	"github.com/mcpdir/mcpdir/internal/store"
)

func newTestServer(t *testing.T) (*Server, *moderation.Workflow) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	a := analyzer.New()
	w := moderation.New(s)
	in := intake.New(w, intake.WithAnalyzer(a, nil))
	return NewServer(s, in, w, a), w
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func submitArgs(name string) map[string]any {
	return map[string]any{
		"name":              name,
		"category":          "server",
		"short_description": "Serves live weather data to MCP-compatible clients",
		"long_description":  "A full-featured weather data server with caching, rate limiting, and support for several upstream providers.",
		"license":           "MIT",
		"version":           "1.0.0",
		"tags":              "weather,api",
		"website":           "https://example.com",
		"submitted_by":      "developer123",
	}
}

func (s *Server) mustSubmit(t *testing.T, name string) *models.Listing {
	t.Helper()
	result, err := s.handleSubmit(context.Background(), callToolReq("dir_submit", submitArgs(name)))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	var l models.Listing
	resultJSON(t, result, &l)
	return &l
}

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NotNil(t, srv.MCPServer())
}

func TestHandleSubmit(t *testing.T) {
	srv, _ := newTestServer(t)

	l := srv.mustSubmit(t, "Weather Server")
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, models.StatusPending, l.Status)
	assert.Equal(t, []string{"weather", "api"}, l.Tags)
	assert.Equal(t, "https://example.com", l.Links[models.LinkWebsite])
	require.NotNil(t, l.Analysis)
	assert.NotNil(t, l.Analysis.QualityScore)
}

func TestHandleSubmit_ValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	args := submitArgs("x")
	delete(args, "submitted_by")
	result, err := srv.handleSubmit(context.Background(), callToolReq("dir_submit", args))
	require.NoError(t, err)
	require.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "name")
	assert.Contains(t, text, "submittedBy")
}

func TestHandleSubmit_MinimalDraft(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSubmit(context.Background(), callToolReq("dir_submit", map[string]any{
		"name":              "Foo",
		"category":          "Server",
		"short_description": "A tool",
		"submitted_by":      "alice",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var l models.Listing
	resultJSON(t, result, &l)
	assert.Equal(t, models.StatusPending, l.Status)
	require.NotNil(t, l.Analysis)
	assert.NotEmpty(t, l.Analysis.Issues)
}

func TestHandleSearch_ApprovedOnly(t *testing.T) {
	srv, w := newTestServer(t)
	ctx := context.Background()

	visible := srv.mustSubmit(t, "Visible Server")
	_, err := w.Approve(ctx, visible.ID, "mod", "")
	require.NoError(t, err)
	srv.mustSubmit(t, "Pending Server")

	result, err := srv.handleSearch(ctx, callToolReq("dir_search", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Items      []map[string]any `json:"items"`
		TotalCount int              `json:"total_count"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "Visible Server", out.Items[0]["name"])
	assert.Equal(t, 1, out.TotalCount)
}

func TestHandleSearch_BadSortKey(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleSearch(context.Background(), callToolReq("dir_search", map[string]any{"sort_by": "bogus"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetListing_ByPrefix(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	l := srv.mustSubmit(t, "Prefix Target")

	result, err := srv.handleGetListing(ctx, callToolReq("dir_get_listing", map[string]any{
		"listing_id": l.ID[:10],
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var got models.Listing
	resultJSON(t, result, &got)
	assert.Equal(t, l.ID, got.ID)
}

func TestHandleGetListing_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleGetListing(context.Background(), callToolReq("dir_get_listing", map[string]any{
		"listing_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAnalyze(t *testing.T) {
	srv, w := newTestServer(t)
	ctx := context.Background()

	existing := srv.mustSubmit(t, "OpenMCP Server")
	_, err := w.Approve(ctx, existing.ID, "mod", "")
	require.NoError(t, err)

	result, err := srv.handleAnalyze(ctx, callToolReq("dir_analyze", map[string]any{
		"name":              "Open MCP Server",
		"category":          "server",
		"short_description": "too short",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var report models.AnalysisReport
	resultJSON(t, result, &report)
	require.NotNil(t, report.QualityScore)
	assert.Less(t, *report.QualityScore, 1.0)
	require.Len(t, report.Similar, 1)
	assert.Equal(t, existing.ID, report.Similar[0].ListingID)
}

func TestHandleAnalyze_SessionDebounced(t *testing.T) {
	srv, _ := newTestServer(t)
	WithSessionDebounce(5 * time.Millisecond)(srv)
	t.Cleanup(srv.session.Close)

	result, err := srv.handleAnalyze(context.Background(), callToolReq("dir_analyze", map[string]any{
		"name": "Debounced Draft",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var report models.AnalysisReport
	resultJSON(t, result, &report)
	require.NotNil(t, report.QualityScore)
	assert.NotEmpty(t, report.Issues)
}

func TestHandleReviewQueue(t *testing.T) {
	srv, w := newTestServer(t)
	ctx := context.Background()

	srv.mustSubmit(t, "Queued A")
	srv.mustSubmit(t, "Queued B")
	decided := srv.mustSubmit(t, "Decided")
	_, err := w.Approve(ctx, decided.ID, "mod", "")
	require.NoError(t, err)

	result, err := srv.handleReviewQueue(ctx, callToolReq("dir_review_queue", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Items  []map[string]any `json:"items"`
		Counts map[string]int   `json:"counts"`
	}
	resultJSON(t, result, &out)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, 2, out.Counts["pending"])
	assert.Equal(t, 1, out.Counts["approved"])
}

func TestHandleApprove(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	l := srv.mustSubmit(t, "To Approve")
	result, err := srv.handleApprove(ctx, callToolReq("dir_approve", map[string]any{
		"listing_id": l.ID,
		"decided_by": "mod1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "approved", out["status"])
	assert.Equal(t, "mod1", out["decided_by"])
}

func TestHandleReject_RequiresReason(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	l := srv.mustSubmit(t, "To Reject")

	result, err := srv.handleReject(ctx, callToolReq("dir_reject", map[string]any{
		"listing_id": l.ID,
		"decided_by": "mod1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "reason is required")

	result, err = srv.handleReject(ctx, callToolReq("dir_reject", map[string]any{
		"listing_id": l.ID,
		"decided_by": "mod1",
		"reason":     "not MCP-compatible",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var out map[string]any
	resultJSON(t, result, &out)
	assert.Equal(t, "rejected", out["status"])
	assert.Equal(t, "not MCP-compatible", out["rejection_reason"])
}

func TestHandleApprove_AlreadyDecided(t *testing.T) {
	srv, w := newTestServer(t)
	ctx := context.Background()

	l := srv.mustSubmit(t, "Contested")
	_, err := w.Approve(ctx, l.ID, "mod1", "")
	require.NoError(t, err)

	result, err := srv.handleApprove(ctx, callToolReq("dir_approve", map[string]any{
		"listing_id": l.ID,
		"decided_by": "mod2",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not pending")
}
