package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scanvault/internal/activity"
	"scanvault/internal/config"
	"scanvault/internal/journal"
	"scanvault/internal/vault"
)

func newEventsCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	var (
		store string
		op    string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent store activity from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := eventFilter(store, op, limit)
			if err != nil {
				return err
			}
			return withJournal(cfg, func(j *journal.Journal) error {
				events, err := j.Recent(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return writeOutput(*outFormat, events, func() error {
					for _, ev := range events {
						if err := writePlain("%s\n", formatEventLine(ev)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&store, "store", "", "filter by store: images or scans")
	cmd.Flags().StringVar(&op, "op", "", "filter by op: save, reject, evict, delete")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to show")
	cmd.AddCommand(newEventsPruneCmd(cfg))
	return cmd
}

func newEventsPruneCmd(cfg *config.Config) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal events older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withJournal(cfg, func(j *journal.Journal) error {
				removed, err := j.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				return writePlain("pruned %d events\n", removed)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")
	return cmd
}

func eventFilter(store, op string, limit int) (journal.Filter, error) {
	store = strings.ToLower(strings.TrimSpace(store))
	switch store {
	case "", activity.StoreImages, activity.StoreScans:
	default:
		return journal.Filter{}, fmt.Errorf("invalid --store %q (expected images or scans)", store)
	}
	o := activity.Op(strings.ToLower(strings.TrimSpace(op)))
	switch o {
	case "", activity.OpSave, activity.OpReject, activity.OpEvict, activity.OpDelete:
	default:
		return journal.Filter{}, fmt.Errorf("invalid --op %q", op)
	}
	return journal.Filter{Store: store, Op: o, Limit: limit}, nil
}

func formatEventLine(ev activity.Event) string {
	line := fmt.Sprintf("%s  %-6s %-6s %s  %s", formatTime(ev.At), ev.Store, ev.Op, humanize.IBytes(uint64(max(ev.Bytes, 0))), ev.Subject)
	if ev.Kind != "" {
		line += "  (" + ev.Kind + ")"
	}
	return line
}

// withJournal opens the vault so the journal path and schema match what the
// stores write to.
func withJournal(cfg *config.Config, fn func(*journal.Journal) error) error {
	return withVault(cfg, func(v *vault.Vault) error {
		j := v.Journal()
		if j == nil {
			return fmt.Errorf("%w at %s", errNoJournal, cfg.ResolvedJournalPath())
		}
		return fn(j)
	})
}
