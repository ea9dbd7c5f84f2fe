package main

import (
	"github.com/spf13/cobra"

	"scanvault/internal/config"
	"scanvault/internal/journal"
	"scanvault/internal/metrics"
)

func newStatsCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show activity counters aggregated from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cfg, func(j *journal.Journal) error {
				rows, err := j.Summary(cmd.Context())
				if err != nil {
					return err
				}
				registry := metrics.NewRegistry()
				defer registry.Shutdown(cmd.Context())
				seedRegistry(cmd, registry, rows)
				snap, err := registry.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				return writeOutput(*outFormat, snap, func() error {
					lines, err := registry.SnapshotLines(cmd.Context())
					if err != nil {
						return err
					}
					for _, line := range lines {
						if err := writePlain("%s\n", line); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func seedRegistry(cmd *cobra.Command, registry *metrics.Registry, rows []journal.SummaryRow) {
	for _, row := range rows {
		labels := map[string]string{"store": row.Store}
		registry.Inc(cmd.Context(), metrics.CounterName(row.Op), labels, row.Count)
		if row.Bytes > 0 {
			registry.Inc(cmd.Context(), metrics.BytesName(row.Op), labels, row.Bytes)
		}
	}
}
