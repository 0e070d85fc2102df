// Package catalog projects listing snapshots into searchable, sorted,
// paginated result pages. It holds no state of its own; every Query reads a
// fresh snapshot from the store.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/store"
)

// Sort keys accepted by Options.SortBy.
const (
	SortRating       = "rating"
	SortPopularity   = "popularity"
	SortRecency      = "recency"
	SortName         = "name"
	SortQualityScore = "qualityscore"
)

const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// CategoryAll matches every category.
const CategoryAll = "all"

// Options selects, orders, and pages a listing snapshot. The zero value
// returns all approved listings sorted by recency, first page.
type Options struct {
	// Search is a case-insensitive substring matched against name and both
	// descriptions. With MatchSubmitter set it also matches SubmittedBy.
	Search string
	// Category filters by listing category; empty or "all" matches everything.
	Category string
	// SortBy is one of the Sort* constants; empty means SortRecency.
	SortBy string
	// Order is "asc" or "desc"; empty picks the natural order for the sort
	// key (descending for rating, popularity, recency, and quality score,
	// ascending for name).
	Order string
	// Statuses scopes the snapshot; empty means approved only.
	Statuses []models.ListingStatus
	// MatchSubmitter extends Search to the SubmittedBy field. Moderator
	// queue views set this; public catalog views do not.
	MatchSubmitter bool

	Page     int
	PageSize int
}

// Result is one page of matches plus the total across all pages.
type Result struct {
	Items      []*models.Listing `json:"items"`
	TotalCount int               `json:"totalCount"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
}

// Engine answers queries against a Store.
type Engine struct {
	store store.Store
}

func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Query loads a snapshot and applies opts. Unknown sort keys or orders are
// rejected as a ValidationError.
func (e *Engine) Query(ctx context.Context, opts Options) (*Result, error) {
	statuses := opts.Statuses
	if len(statuses) == 0 {
		statuses = []models.ListingStatus{models.StatusApproved}
	}
	snapshot, err := e.store.ListListings(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return Apply(snapshot, opts)
}

// Apply runs opts against an in-memory snapshot. The snapshot slice is not
// modified; the result holds pointers into it.
func Apply(snapshot []*models.Listing, opts Options) (*Result, error) {
	// Sort keys and orders match case-insensitively, so "qualityScore"
	// and "qualityscore" name the same key.
	sortBy := strings.ToLower(opts.SortBy)
	if sortBy == "" {
		sortBy = SortRecency
	}
	order, err := resolveOrder(sortBy, strings.ToLower(opts.Order))
	if err != nil {
		return nil, err
	}

	matched := make([]*models.Listing, 0, len(snapshot))
	search := strings.ToLower(strings.TrimSpace(opts.Search))
	for _, l := range snapshot {
		if !matchCategory(l, opts.Category) {
			continue
		}
		if search != "" && !matchSearch(l, search, opts.MatchSubmitter) {
			continue
		}
		matched = append(matched, l)
	}

	sortListings(matched, sortBy, order)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	items := []*models.Listing{}
	if start < len(matched) {
		if end > len(matched) {
			end = len(matched)
		}
		items = matched[start:end]
	}

	return &Result{
		Items:      items,
		TotalCount: len(matched),
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

func resolveOrder(sortBy, order string) (string, error) {
	switch sortBy {
	case SortRating, SortPopularity, SortRecency, SortName, SortQualityScore:
	default:
		return "", models.NewValidationError("sortBy", fmt.Sprintf("unknown sort key %q", sortBy))
	}
	switch order {
	case OrderAsc, OrderDesc:
		return order, nil
	case "":
		if sortBy == SortName {
			return OrderAsc, nil
		}
		return OrderDesc, nil
	default:
		return "", models.NewValidationError("order", fmt.Sprintf("unknown order %q", order))
	}
}

func matchCategory(l *models.Listing, category string) bool {
	if category == "" || category == CategoryAll {
		return true
	}
	return strings.EqualFold(string(l.Category), category)
}

func matchSearch(l *models.Listing, search string, matchSubmitter bool) bool {
	if strings.Contains(strings.ToLower(l.Name), search) ||
		strings.Contains(strings.ToLower(l.ShortDescription), search) ||
		strings.Contains(strings.ToLower(l.LongDescription), search) {
		return true
	}
	return matchSubmitter && strings.Contains(strings.ToLower(l.SubmittedBy), search)
}

// sortListings orders in place. Equal keys fall back to id ascending so that
// pages are stable across repeated queries.
func sortListings(listings []*models.Listing, sortBy, order string) {
	less := lessFunc(sortBy)
	sort.Slice(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		switch {
		case less(a, b):
			return order == OrderAsc
		case less(b, a):
			return order == OrderDesc
		default:
			return a.ID < b.ID
		}
	})
}

// lessFunc returns the ascending comparison for a sort key. Callers flip it
// for descending order; ties report neither side as less.
func lessFunc(sortBy string) func(a, b *models.Listing) bool {
	switch sortBy {
	case SortRating:
		return func(a, b *models.Listing) bool { return a.Rating < b.Rating }
	case SortPopularity:
		return func(a, b *models.Listing) bool { return a.ReviewCount < b.ReviewCount }
	case SortName:
		return func(a, b *models.Listing) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	case SortQualityScore:
		return func(a, b *models.Listing) bool { return a.Analysis.Score() < b.Analysis.Score() }
	default: // SortRecency
		return func(a, b *models.Listing) bool { return a.SubmittedAt.Before(b.SubmittedAt) }
	}
}
