package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newIncidentsCmd creates the 'incidents' subcommand group.
func newIncidentsCmd() *cobra.Command {
	incidentsCmd := &cobra.Command{
		Use:   "incidents",
		Short: "Inspect stored incidents",
	}

	incidentsCmd.AddCommand(newIncidentsListCmd())
	incidentsCmd.AddCommand(newIncidentsShowCmd())

	return incidentsCmd
}

// newIncidentsListCmd creates the 'incidents list' subcommand.
func newIncidentsListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List incidents, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			svcs, cleanup, err := initServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			incidents, total, err := svcs.incidents.ListIncidents(ctx, limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list incidents: %w", err)
			}

			if outputJSON {
				return outputAsJSON(incidents)
			}

			renderIncidentsTable(incidents, total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum incidents to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the result set")

	return cmd
}

// newIncidentsShowCmd creates the 'incidents show' subcommand.
func newIncidentsShowCmd() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "show <incident-id>",
		Short: "Show one incident and optionally its event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			svcs, cleanup, err := initServices(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			inc, err := svcs.incidents.GetIncident(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get incident: %w", err)
			}

			if outputJSON {
				return outputAsJSON(inc)
			}
			renderIncidentDetail(inc)

			if showEvents {
				events, err := svcs.incidents.GetEvents(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get events: %w", err)
				}
				renderEventsTable(events)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "Also print the incident's event log")

	return cmd
}
