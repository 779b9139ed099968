package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"vigil/core"
)

// newReplayCmd creates the 'replay' subcommand.
func newReplayCmd() *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "replay <incident-id>",
		Short: "Replay and verify an incident's event log",
		Long: `Rebuild an incident from its ordered event log and verify the hash chain,
sequence continuity and agreement with the live incident row.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			svcs, cleanup, err := initServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			incidentID := args[0]
			if !quiet {
				infoColor.Printf("Replaying incident: %s\n", incidentID)
			}

			var s *spinner.Spinner
			if showProgress && !outputJSON && !quiet {
				s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				s.Suffix = " Verifying event log..."
				s.Start()
			}

			report, err := svcs.replay.VerifyIncident(ctx, incidentID)

			if s != nil {
				s.Stop()
			}

			if err != nil {
				if iv, ok := core.IsIntegrityViolation(err); ok {
					renderIntegrityViolation(iv)
					return fmt.Errorf("integrity verification failed")
				}
				return fmt.Errorf("failed to replay incident: %w", err)
			}

			if outputJSON {
				return outputAsJSON(report)
			}

			renderReplayReport(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")

	return cmd
}
