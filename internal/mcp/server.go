// Package mcp exposes the directory as MCP tools over stdio, so
// MCP-compatible clients can search the catalog, submit listings, and
// moderate the review queue.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mcpdir/mcpdir/internal/analyzer"
	"github.com/mcpdir/mcpdir/internal/catalog"
	"github.com/mcpdir/mcpdir/internal/intake"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/moderation"
	"github.com/mcpdir/mcpdir/internal/store"
)

// Server wraps the directory data layer and exposes it as MCP tools.
type Server struct {
	store    store.Store
	engine   *catalog.Engine
	intake   *intake.Intake
	workflow *moderation.Workflow
	analyzer *analyzer.Analyzer

	// session, when set, backs dir_analyze with debounced last-wins
	// analysis. Stdio serves exactly one client, so a single session is
	// enough.
	session *analyzer.Session
}

// Option configures a Server.
type Option func(*Server)

// WithSessionDebounce routes dir_analyze through a live analysis session
// with the given debounce. Without it each call analyzes synchronously.
func WithSessionDebounce(d time.Duration) Option {
	return func(s *Server) {
		s.session = analyzer.NewSession(s.analyzer, s.approvedSnapshot, d)
	}
}

// NewServer creates the MCP server wrapper with all required dependencies.
func NewServer(s store.Store, in *intake.Intake, w *moderation.Workflow, a *analyzer.Analyzer, opts ...Option) *Server {
	srv := &Server{
		store:    s,
		engine:   catalog.NewEngine(s),
		intake:   in,
		workflow: w,
		analyzer: a,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

func (s *Server) approvedSnapshot(ctx context.Context) []*models.Listing {
	listings, err := s.store.ListListings(ctx, []models.ListingStatus{models.StatusApproved})
	if err != nil {
		return nil
	}
	return listings
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("mcpdir", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.searchTool())
	srv.AddTool(s.getListingTool())
	srv.AddTool(s.submitTool())
	srv.AddTool(s.analyzeTool())
	srv.AddTool(s.reviewQueueTool())
	srv.AddTool(s.approveTool())
	srv.AddTool(s.rejectTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	if s.session != nil {
		defer s.session.Close()
	}
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// dir_search
func (s *Server) searchTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dir_search",
		mcp.WithDescription("Search the public catalog of approved MCP servers, applications, and tools. Returns a JSON page of listings plus the total match count."),
		mcp.WithString("search", mcp.Description("Case-insensitive text matched against names and descriptions")),
		mcp.WithString("type", mcp.Description("Category filter: server, application, tool, or all (default all)")),
		mcp.WithString("sort_by", mcp.Description("Sort key: rating, popularity, recency, name, qualityscore (default recency)")),
		mcp.WithString("order", mcp.Description("Sort order: asc or desc")),
		mcp.WithNumber("page", mcp.Description("Page number, starting at 1")),
		mcp.WithNumber("page_size", mcp.Description("Results per page (default 20, max 100)")),
	)
	return tool, s.handleSearch
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	opts := catalog.Options{
		Search:   request.GetString("search", ""),
		Category: request.GetString("type", ""),
		SortBy:   request.GetString("sort_by", ""),
		Order:    request.GetString("order", ""),
		Page:     request.GetInt("page", 0),
		PageSize: request.GetInt("page_size", 0),
	}

	result, err := s.engine.Query(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	type listingOut struct {
		ID               string   `json:"id"`
		Name             string   `json:"name"`
		Category         string   `json:"category"`
		ShortDescription string   `json:"short_description"`
		Version          string   `json:"version,omitempty"`
		License          string   `json:"license,omitempty"`
		Tags             []string `json:"tags,omitempty"`
		Rating           float64  `json:"rating"`
		ReviewCount      int      `json:"review_count"`
		SubmittedAt      string   `json:"submitted_at"`
	}

	items := make([]listingOut, len(result.Items))
	for i, l := range result.Items {
		items[i] = listingOut{
			ID:               l.ID,
			Name:             l.Name,
			Category:         string(l.Category),
			ShortDescription: l.ShortDescription,
			Version:          l.Version,
			License:          l.License,
			Tags:             l.Tags,
			Rating:           l.Rating,
			ReviewCount:      l.ReviewCount,
			SubmittedAt:      l.SubmittedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(map[string]any{
		"items":       items,
		"total_count": result.TotalCount,
		"page":        result.Page,
		"page_size":   result.PageSize,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// dir_get_listing
func (s *Server) getListingTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dir_get_listing",
		mcp.WithDescription("Get the full record for one listing by ID (full ULID or unique prefix), including links, analysis report, and decision."),
		mcp.WithString("listing_id", mcp.Required(), mcp.Description("Listing ID (full ULID or unique prefix)")),
	)
	return tool, s.handleGetListing
}

func (s *Server) handleGetListing(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("listing_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: listing_id"), nil
	}

	listing, err := s.findListing(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(listing)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal listing: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// dir_submit
func (s *Server) submitTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dir_submit",
		mcp.WithDescription("Submit a new listing to the directory. The submission enters the moderation queue as pending and an advisory quality analysis is attached when available. Returns the created listing as JSON, or field-level validation errors."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Listing name")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Category: server, application, or tool")),
		mcp.WithString("short_description", mcp.Required(), mcp.Description("One-line description (up to 200 characters)")),
		mcp.WithString("long_description", mcp.Description("Detailed description; omitting it lowers the quality score")),
		mcp.WithString("submitted_by", mcp.Required(), mcp.Description("Submitter handle")),
		mcp.WithString("license", mcp.Description("License identifier, e.g. MIT or Apache-2.0; omitting it is flagged as an analysis issue")),
		mcp.WithString("requirements", mcp.Description("System requirements")),
		mcp.WithString("version", mcp.Description("Current version")),
		mcp.WithString("maintainer", mcp.Description("Maintainer name")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithString("website", mcp.Description("Website URL")),
		mcp.WithString("github", mcp.Description("GitHub repository URL")),
		mcp.WithString("documentation", mcp.Description("Documentation URL")),
	)
	return tool, s.handleSubmit
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c := &intake.Candidate{
		Name:             request.GetString("name", ""),
		Category:         request.GetString("category", ""),
		ShortDescription: request.GetString("short_description", ""),
		LongDescription:  request.GetString("long_description", ""),
		Requirements:     request.GetString("requirements", ""),
		Version:          request.GetString("version", ""),
		Maintainer:       request.GetString("maintainer", ""),
		License:          request.GetString("license", ""),
		SubmittedBy:      request.GetString("submitted_by", ""),
	}
	if tags := request.GetString("tags", ""); tags != "" {
		c.Tags = strings.Split(tags, ",")
	}
	for _, kind := range []string{"website", "github", "documentation"} {
		if url := request.GetString(kind, ""); url != "" {
			c.Links = append(c.Links, intake.Link{Kind: kind, URL: url})
		}
	}

	listing, err := s.intake.Submit(ctx, c)
	if err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			data, _ := json.Marshal(map[string]any{"error": "validation failed", "fields": ve.Fields})
			return mcp.NewToolResultError(string(data)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", err)), nil
	}

	data, err := json.Marshal(listing)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal listing: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// dir_analyze
func (s *Server) analyzeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dir_analyze",
		mcp.WithDescription("Run an advisory quality analysis on a draft listing without submitting it. Returns a report with a quality score, issues, suggestions, and similar approved listings. Analysis never fails; an incomplete draft simply scores lower."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Listing name")),
		mcp.WithString("category", mcp.Description("Category: server, application, or tool")),
		mcp.WithString("short_description", mcp.Description("One-line description")),
		mcp.WithString("long_description", mcp.Description("Detailed description")),
		mcp.WithString("license", mcp.Description("License identifier")),
		mcp.WithString("version", mcp.Description("Current version")),
	)
	return tool, s.handleAnalyze
}

func (s *Server) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}

	candidate := &models.Listing{
		Name:             name,
		Category:         models.Category(strings.ToLower(request.GetString("category", ""))),
		ShortDescription: request.GetString("short_description", ""),
		LongDescription:  request.GetString("long_description", ""),
		License:          request.GetString("license", ""),
		Version:          request.GetString("version", ""),
	}

	var report *models.AnalysisReport
	if s.session != nil {
		s.session.Update(candidate)
		if r, ok := s.session.Report(ctx); ok {
			report = r
		} else {
			report = &models.AnalysisReport{}
		}
	} else {
		report = s.analyzer.Analyze(ctx, candidate, s.approvedSnapshot(ctx))
	}

	data, err := json.Marshal(report)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// dir_review_queue
func (s *Server) reviewQueueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dir_review_queue",
		mcp.WithDescription("List the moderation queue with per-status counts. Defaults to pending listings; each entry includes the full record with its analysis report."),
		mcp.WithString("statuses", mcp.Description("Comma-separated status filter: pending, approved, rejected (default pending)")),
		mcp.WithString("search", mcp.Description("Text matched against names, descriptions, and submitter handles")),
		mcp.WithString("sort_by", mcp.Description("Sort key: recency, name, qualityscore (default recency)")),
		mcp.WithString("order", mcp.Description("Sort order: asc or desc")),
	)
	return tool, s.handleReviewQueue
}

func (s *Server) handleReviewQueue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var statuses []models.ListingStatus
	for _, raw := range strings.Split(request.GetString("statuses", ""), ",") {
		switch st := models.ListingStatus(strings.TrimSpace(raw)); st {
		case models.StatusPending, models.StatusApproved, models.StatusRejected:
			statuses = append(statuses, st)
		}
	}
	if len(statuses) == 0 {
		statuses = []models.ListingStatus{models.StatusPending}
	}

	result, err := s.engine.Query(ctx, catalog.Options{
		Search:         request.GetString("search", ""),
		SortBy:         request.GetString("sort_by", ""),
		Order:          request.GetString("order", ""),
		Statuses:       statuses,
		MatchSubmitter: true,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("queue query failed: %v", err)), nil
	}

	counts, err := s.workflow.QueueCounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to count queue: %v", err)), nil
	}

	data, err := json.Marshal(map[string]any{
		"items":       result.Items,
		"total_count": result.TotalCount,
		"counts":      counts,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal queue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// dir_approve
func (s *Server) approveTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dir_approve",
		mcp.WithDescription("Approve a pending listing, publishing it to the catalog. Fails if the listing has already been decided."),
		mcp.WithString("listing_id", mcp.Required(), mcp.Description("Listing ID (full ULID or unique prefix)")),
		mcp.WithString("decided_by", mcp.Required(), mcp.Description("Moderator handle")),
		mcp.WithString("notes", mcp.Description("Internal moderator notes, never shown publicly")),
	)
	return tool, s.handleApprove
}

func (s *Server) handleApprove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("listing_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: listing_id"), nil
	}
	decidedBy, err := request.RequireString("decided_by")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: decided_by"), nil
	}

	listing, err := s.findListing(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	decided, err := s.workflow.Approve(ctx, listing.ID, decidedBy, request.GetString("notes", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, _ := json.Marshal(map[string]any{
		"id":         decided.ID,
		"name":       decided.Name,
		"status":     string(decided.Status),
		"decided_by": decided.Decision.DecidedBy,
		"decided_at": decided.Decision.DecidedAt.Format(time.RFC3339),
	})
	return mcp.NewToolResultText(string(data)), nil
}

// dir_reject
func (s *Server) rejectTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("dir_reject",
		mcp.WithDescription("Reject a pending listing with a reason the submitter will see. Fails if the listing has already been decided."),
		mcp.WithString("listing_id", mcp.Required(), mcp.Description("Listing ID (full ULID or unique prefix)")),
		mcp.WithString("decided_by", mcp.Required(), mcp.Description("Moderator handle")),
		mcp.WithString("reason", mcp.Required(), mcp.Description("Rejection reason shown to the submitter")),
		mcp.WithString("notes", mcp.Description("Internal moderator notes, never shown publicly")),
	)
	return tool, s.handleReject
}

func (s *Server) handleReject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("listing_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: listing_id"), nil
	}
	decidedBy, err := request.RequireString("decided_by")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: decided_by"), nil
	}
	reason, err := request.RequireString("reason")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: reason"), nil
	}

	listing, err := s.findListing(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	decided, err := s.workflow.Reject(ctx, listing.ID, decidedBy, reason, request.GetString("notes", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, _ := json.Marshal(map[string]any{
		"id":               decided.ID,
		"name":             decided.Name,
		"status":           string(decided.Status),
		"decided_by":       decided.Decision.DecidedBy,
		"rejection_reason": decided.Decision.RejectionReason,
		"decided_at":       decided.Decision.DecidedAt.Format(time.RFC3339),
	})
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// findListing finds a listing by full ID or unique prefix.
func (s *Server) findListing(ctx context.Context, id string) (*models.Listing, error) {
	if listing, err := s.store.GetListing(ctx, id); err == nil {
		return listing, nil
	}

	upper := strings.ToUpper(id)
	listings, err := s.store.ListListings(ctx, nil)
	if err != nil {
		return nil, err
	}

	var matches []*models.Listing
	for _, l := range listings {
		if strings.HasPrefix(l.ID, upper) {
			matches = append(matches, l)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("listing not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous listing ID %s: matches %d listings", id, len(matches))
	}
}
