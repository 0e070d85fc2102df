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
)

var (
	reviewStatus string
	reviewSearch string
	reviewBy     string
	reviewReason string
	reviewNotes  string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the moderation queue",
	Long:  "List, inspect, and decide on submitted listings.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "queue"},
	Short:   "List the moderation queue",
	Long:    "List listings awaiting review. Use --status to see decided listings too.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewListRun()
	},
}

var reviewShowCmd = &cobra.Command{
	Use:   "show <listing-id>",
	Short: "Show a listing with its analysis report and decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewShowRun(args[0])
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <listing-id>",
	Short: "Approve a pending listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewApproveRun(args[0])
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <listing-id>",
	Short: "Reject a pending listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reviewRejectRun(args[0])
	},
}

func init() {
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "", "Filter by status: pending, approved, rejected (default pending)")
	reviewListCmd.Flags().StringVar(&reviewSearch, "search", "", "Search text matched against names, descriptions, and submitters")

	reviewApproveCmd.Flags().StringVar(&reviewBy, "by", "", "Moderator handle (required)")
	reviewApproveCmd.Flags().StringVar(&reviewNotes, "notes", "", "Internal moderator notes")
	_ = reviewApproveCmd.MarkFlagRequired("by")

	reviewRejectCmd.Flags().StringVar(&reviewBy, "by", "", "Moderator handle (required)")
	reviewRejectCmd.Flags().StringVar(&reviewReason, "reason", "", "Rejection reason shown to the submitter (required)")
	reviewRejectCmd.Flags().StringVar(&reviewNotes, "notes", "", "Internal moderator notes")
	_ = reviewRejectCmd.MarkFlagRequired("by")
	_ = reviewRejectCmd.MarkFlagRequired("reason")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}

func reviewListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	statuses := []models.ListingStatus{models.StatusPending}
	if reviewStatus != "" {
		statuses = []models.ListingStatus{models.ListingStatus(strings.ToLower(reviewStatus))}
	}

	result, err := catalog.NewEngine(s).Query(ctx, catalog.Options{
		Search:         reviewSearch,
		Statuses:       statuses,
		MatchSubmitter: true,
		PageSize:       catalog.MaxPageSize,
	})
	if err != nil {
		return err
	}

	if result.TotalCount == 0 {
		ui.Info("Queue is empty.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Type", "Score", "Submitted By", "Age"})
	for _, l := range result.Items {
		var score *float64
		if l.Analysis != nil {
			score = l.Analysis.QualityScore
		}
		_ = table.Append([]string{
			shortID(l.ID),
			l.Name,
			string(l.Category),
			output.ScoreColor(score),
			l.SubmittedBy,
			timeAgo(l.SubmittedAt),
		})
	}
	_ = table.Render()
	return nil
}

func reviewShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	l, err := findListing(ctx, s, id)
	if err != nil {
		return err
	}

	if err := listingShowRun(l.ID); err != nil {
		return err
	}

	if l.Analysis != nil {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "  Quality:    %s\n", output.ScoreColor(l.Analysis.QualityScore))
		for _, issue := range l.Analysis.Issues {
			fmt.Fprintf(ui.Out, "  Issue:      %s\n", issue)
		}
		for _, sug := range l.Analysis.Suggestions {
			fmt.Fprintf(ui.Out, "  Suggest:    %s\n", sug)
		}
		for _, sim := range l.Analysis.Similar {
			fmt.Fprintf(ui.Out, "  Similar:    %s (%s, %.0f%%)\n", sim.Name, shortID(sim.ListingID), sim.Similarity*100)
		}
	}

	if l.Decision != nil {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "  Decided:    %s by %s\n", l.Decision.DecidedAt.Format(time.RFC3339), l.Decision.DecidedBy)
		if l.Decision.RejectionReason != "" {
			fmt.Fprintf(ui.Out, "  Reason:     %s\n", l.Decision.RejectionReason)
		}
		if l.Decision.ModeratorNotes != "" {
			fmt.Fprintf(ui.Out, "  Notes:      %s\n", l.Decision.ModeratorNotes)
		}
	}

	return nil
}

func reviewApproveRun(id string) error {
	w, err := getWorkflow()
	if err != nil {
		return err
	}
	ctx := context.Background()

	l, err := findListing(ctx, dataStore, id)
	if err != nil {
		return err
	}

	approved, err := w.Approve(ctx, l.ID, reviewBy, reviewNotes)
	if err != nil {
		return err
	}

	ui.Success("Approved %s: %s", output.Cyan(shortID(approved.ID)), approved.Name)
	return nil
}

func reviewRejectRun(id string) error {
	w, err := getWorkflow()
	if err != nil {
		return err
	}
	ctx := context.Background()

	l, err := findListing(ctx, dataStore, id)
	if err != nil {
		return err
	}

	rejected, err := w.Reject(ctx, l.ID, reviewBy, reviewReason, reviewNotes)
	if err != nil {
		return err
	}

	ui.Success("Rejected %s: %s", output.Cyan(shortID(rejected.ID)), rejected.Name)
	return nil
}

// timeAgo renders a rough relative duration like "3d" or "2h".
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
