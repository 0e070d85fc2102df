package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpdir/mcpdir/internal/catalog"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/output"
	"github.com/mcpdir/mcpdir/internal/store"
)

var (
	listingSearch   string
	listingType     string
	listingSort     string
	listingOrder    string
	listingPage     int
	listingPageSize int
)

var listingCmd = &cobra.Command{
	Use:   "listing",
	Short: "Browse the public catalog",
	Long:  "Browse approved listings in the directory catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listingListRun()
	},
}

var listingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "search"},
	Short:   "List approved listings",
	Long:    "List approved listings with optional search, category filter, sorting, and paging.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listingListRun()
	},
}

var listingShowCmd = &cobra.Command{
	Use:   "show <listing-id>",
	Short: "Show listing details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listingShowRun(args[0])
	},
}

func init() {
	listingListCmd.Flags().StringVar(&listingSearch, "search", "", "Search text matched against names and descriptions")
	listingListCmd.Flags().StringVar(&listingType, "type", "", "Filter by category: server, application, tool")
	listingListCmd.Flags().StringVar(&listingSort, "sort", "", "Sort key: rating, popularity, recency, name, qualityscore")
	listingListCmd.Flags().StringVar(&listingOrder, "order", "", "Sort order: asc or desc")
	listingListCmd.Flags().IntVar(&listingPage, "page", 1, "Page number")
	listingListCmd.Flags().IntVar(&listingPageSize, "page-size", catalog.DefaultPageSize, "Results per page")

	listingCmd.AddCommand(listingListCmd)
	listingCmd.AddCommand(listingShowCmd)
	rootCmd.AddCommand(listingCmd)
}

func listingListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	result, err := catalog.NewEngine(s).Query(ctx, catalog.Options{
		Search:   listingSearch,
		Category: listingType,
		SortBy:   listingSort,
		Order:    listingOrder,
		Page:     listingPage,
		PageSize: listingPageSize,
	})
	if err != nil {
		return err
	}

	if result.TotalCount == 0 {
		ui.Info("No listings found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Type", "Rating", "Reviews", "License"})
	for _, l := range result.Items {
		rating := "-"
		if l.ReviewCount > 0 {
			rating = fmt.Sprintf("%.1f", l.Rating)
		}
		_ = table.Append([]string{
			shortID(l.ID),
			l.Name,
			string(l.Category),
			rating,
			fmt.Sprintf("%d", l.ReviewCount),
			l.License,
		})
	}
	_ = table.Render()

	pages := (result.TotalCount + result.PageSize - 1) / result.PageSize
	ui.Info("Page %d of %d (%d listings)", result.Page, pages, result.TotalCount)
	return nil
}

func listingShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	l, err := findListing(ctx, s, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(shortID(l.ID)), l.Name)
	fmt.Fprintf(ui.Out, "  Type:       %s\n", l.Category)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(l.Status)))
	fmt.Fprintf(ui.Out, "  Summary:    %s\n", l.ShortDescription)
	if l.LongDescription != "" {
		fmt.Fprintf(ui.Out, "  Details:    %s\n", l.LongDescription)
	}
	if l.Requirements != "" {
		fmt.Fprintf(ui.Out, "  Requires:   %s\n", l.Requirements)
	}
	if l.Version != "" {
		fmt.Fprintf(ui.Out, "  Version:    %s\n", l.Version)
	}
	if l.License != "" {
		fmt.Fprintf(ui.Out, "  License:    %s\n", l.License)
	}
	if l.Maintainer != "" {
		fmt.Fprintf(ui.Out, "  Maintainer: %s\n", l.Maintainer)
	}
	if len(l.Tags) > 0 {
		fmt.Fprintf(ui.Out, "  Tags:       %s\n", strings.Join(l.Tags, ", "))
	}
	linkLabels := []struct {
		kind  models.LinkKind
		label string
	}{
		{models.LinkWebsite, "Website:"},
		{models.LinkGitHub, "GitHub:"},
		{models.LinkDocumentation, "Docs:"},
	}
	for _, ll := range linkLabels {
		if url, ok := l.Links[ll.kind]; ok {
			fmt.Fprintf(ui.Out, "  %-11s %s\n", ll.label, url)
		}
	}
	if l.ReviewCount > 0 {
		fmt.Fprintf(ui.Out, "  Rating:     %.1f (%d reviews)\n", l.Rating, l.ReviewCount)
	}
	fmt.Fprintf(ui.Out, "  Submitted:  %s by %s\n", l.SubmittedAt.Format(time.RFC3339), l.SubmittedBy)
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", l.ID)

	return nil
}

// findListing finds a listing by full ID or prefix match.
func findListing(ctx context.Context, s store.Store, id string) (*models.Listing, error) {
	// Try exact match first
	if l, err := s.GetListing(ctx, id); err == nil {
		return l, nil
	}

	// Try prefix match - list all and filter
	upper := strings.ToUpper(id)
	listings, err := s.ListListings(ctx, nil)
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

// shortID returns a truncated ULID for display (first 12 chars).
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
