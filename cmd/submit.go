package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mcpdir/mcpdir/internal/intake"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/output"
)

var (
	submitFile     string
	submitValidate bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a listing from a YAML file",
	Long: `Submit a listing to the moderation queue from a YAML candidate file.

The file uses the same field names as the REST API, for example:

  name: Weather Station
  category: server
  shortDescription: Live weather observations over MCP
  longDescription: >
    Exposes METAR observations and hourly forecasts as MCP resources,
    refreshed every ten minutes from the upstream feed.
  license: MIT
  tags: [weather, data]
  links:
    - kind: github
      url: https://github.com/example/weather-station
  submittedBy: alice

Use --validate to check the file without submitting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitRun()
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "Candidate YAML file (required)")
	submitCmd.Flags().BoolVar(&submitValidate, "validate", false, "Validate only, do not submit")
	_ = submitCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(submitCmd)
}

func submitRun() error {
	data, err := os.ReadFile(submitFile)
	if err != nil {
		return fmt.Errorf("read candidate file: %w", err)
	}

	var candidate intake.Candidate
	if err := yaml.Unmarshal(data, &candidate); err != nil {
		return fmt.Errorf("parse candidate file: %w", err)
	}

	in, err := getIntake()
	if err != nil {
		return err
	}

	if submitValidate {
		if err := in.Validate(&candidate); err != nil {
			return printFieldErrors(err)
		}
		ui.Success("Candidate is valid")
		return nil
	}

	listing, err := in.Submit(context.Background(), &candidate)
	if err != nil {
		return printFieldErrors(err)
	}

	ui.Success("Submitted %s: %s (pending review)", output.Cyan(shortID(listing.ID)), listing.Name)
	if listing.Analysis != nil {
		fmt.Fprintf(ui.Out, "  Quality:    %s\n", output.ScoreColor(listing.Analysis.QualityScore))
		for _, issue := range listing.Analysis.Issues {
			fmt.Fprintf(ui.Out, "  Issue:      %s\n", issue)
		}
		for _, sim := range listing.Analysis.Similar {
			fmt.Fprintf(ui.Out, "  Similar:    %s (%.0f%%)\n", sim.Name, sim.Similarity*100)
		}
	}
	return nil
}

// printFieldErrors renders a ValidationError as per-field lines; anything
// else passes through unchanged.
func printFieldErrors(err error) error {
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	fields := make([]string, 0, len(verr.Fields))
	for field := range verr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	ui.Error("Candidate has %d problem(s):", len(fields))
	for _, field := range fields {
		fmt.Fprintf(ui.Out, "  %-20s %s\n", field, verr.Fields[field])
	}
	return fmt.Errorf("validation failed")
}
