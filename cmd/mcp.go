package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mcpdir/mcpdir/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients search the directory, draft and submit listings,
and work the moderation queue natively. Configure your client with:

  {
    "mcpServers": {
      "mcpdir": { "command": "mcpdir", "args": ["mcp"] }
    }
  }

Available tools: dir_search, dir_get_listing, dir_submit, dir_analyze,
dir_review_queue, dir_approve, dir_reject`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	in, err := getIntake()
	if err != nil {
		return err
	}
	w, err := getWorkflow()
	if err != nil {
		return err
	}

	srv := mcp.NewServer(s, in, w, getAnalyzer(),
		mcp.WithSessionDebounce(configuredDebounce()))

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	return srv.ServeStdio(ctx)
}
