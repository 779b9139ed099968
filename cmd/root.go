// Package cmd provides the vigil command-line interface.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vigil/config"
	"vigil/service"
	"vigil/storage"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	noColor    bool
	quiet      bool
)

const defaultTimeout = 2 * time.Minute

// NewRootCmd creates the vigil root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vigil",
		Short: "Deterministic signal-to-incident pipeline",
		Long: `Vigil ingests observability signals, correlates them into evidence-backed
incident candidates and manages the resulting incident lifecycle over an
append-only, hash-chained event log.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newRulesCmd())
	rootCmd.AddCommand(newIncidentsCmd())

	return rootCmd
}

// cliServices bundles the storage-backed services a CLI command needs.
type cliServices struct {
	incidents *service.IncidentService
	replay    *service.ReplayService
}

// initServices opens the configured SQLite database and builds the incident
// services. The returned cleanup closes the database.
func initServices(ctx context.Context) (*cliServices, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := zap.NewNop().Sugar()
	sqlite, err := storage.NewSQLite(cfg.Storage.SQLitePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.Storage.SQLitePath, err)
	}
	cleanup := func() { _ = sqlite.Close() }

	incidentStore := storage.NewSQLiteIncidentStorage(sqlite, logger)
	eventStore := storage.NewSQLiteEventStorage(sqlite, logger)

	return &cliServices{
		incidents: service.NewIncidentService(incidentStore, eventStore, logger),
		replay:    service.NewReplayService(eventStore, incidentStore, logger),
	}, cleanup, nil
}
