package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mcpdir/mcpdir/internal/analyzer"
	"github.com/mcpdir/mcpdir/internal/intake"
	"github.com/mcpdir/mcpdir/internal/llm"
	"github.com/mcpdir/mcpdir/internal/moderation"
	"github.com/mcpdir/mcpdir/internal/models"
	"github.com/mcpdir/mcpdir/internal/output"
	"github.com/mcpdir/mcpdir/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

// Set by Execute from goreleaser ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mcpdir",
	Short: "Community directory for MCP servers, applications, and tools",
	Long: `mcpdir maintains a moderated directory of MCP-compatible servers,
applications, and tools. Submissions are analyzed for quality and
duplicates, reviewed by moderators, and published to a searchable
catalog served over REST and MCP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/mcpdir/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "mcpdir")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MCPDIR")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "mcpdir")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "mcpdir.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("analyzer.debounce_ms", 400)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// The store opens lazily so config/version commands run without a db.
}

// rootRun handles `mcpdir` with no subcommand: show the queue overview,
// falling back to help when no database is reachable.
func rootRun(cmd *cobra.Command) error {
	if _, err := getStore(); err != nil {
		return cmd.Help()
	}
	return statusRun()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getAnalyzer builds the quality analyzer, attaching the Anthropic-backed
// suggester when an API key is configured.
func getAnalyzer() *analyzer.Analyzer {
	var opts []analyzer.Option
	if key := viper.GetString("anthropic.api_key"); key != "" {
		opts = append(opts, analyzer.WithSuggester(llm.NewClient(key, viper.GetString("anthropic.model"))))
	}
	return analyzer.New(opts...)
}

// getWorkflow wires the moderation workflow over the shared store.
func getWorkflow() (*moderation.Workflow, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return moderation.New(s), nil
}

// getIntake wires the submission pipeline: validation, analysis against the
// current approved snapshot, and handoff to the moderation queue.
func getIntake() (*intake.Intake, error) {
	w, err := getWorkflow()
	if err != nil {
		return nil, err
	}
	s, _ := getStore()

	snapshot := func(ctx context.Context) []*models.Listing {
		listings, err := s.ListListings(ctx, []models.ListingStatus{models.StatusApproved})
		if err != nil {
			return nil
		}
		return listings
	}

	return intake.New(w, intake.WithAnalyzer(getAnalyzer(), snapshot)), nil
}

// configuredDebounce returns the analysis session debounce from config.
func configuredDebounce() time.Duration {
	ms := viper.GetInt("analyzer.debounce_ms")
	if ms <= 0 {
		return analyzer.DefaultDebounce
	}
	return time.Duration(ms) * time.Millisecond
}
