package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts per status",
	Long:  "Show how many listings sit in each moderation status.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	w, err := getWorkflow()
	if err != nil {
		return err
	}

	counts, err := w.QueueCounts(context.Background())
	if err != nil {
		return err
	}

	table := ui.Table([]string{"Status", "Listings"})
	total := 0
	for _, status := range []models.ListingStatus{models.StatusPending, models.StatusApproved, models.StatusRejected} {
		_ = table.Append([]string{
			output.StatusColor(string(status)),
			fmt.Sprintf("%d", counts[status]),
		})
		total += counts[status]
	}
	_ = table.Render()

	ui.Info("%d listings total", total)
	return nil
}
