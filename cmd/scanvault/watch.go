package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"scanvault/internal/config"
	"scanvault/internal/vault"
)

const watchDebounce = 300 * time.Millisecond

func newWatchCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print store usage whenever either store directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withVault(cfg, func(v *vault.Vault) error {
				return watchStores(ctx, v)
			})
		},
	}
}

func watchStores(ctx context.Context, v *vault.Vault) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range []string{v.ImagesRoot(), v.ScansRoot()} {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	report := func() {
		for _, r := range usageReports(v, v.ImageUsage(ctx), v.ScanUsage(ctx)) {
			_ = writePlain("%s %s\n", time.Now().Format(time.TimeOnly), formatUsageLine(r))
		}
	}
	report()

	debounceEvents(ctx, watcher.Events, watcher.Errors, watchDebounce, report)
	return nil
}

// debounceEvents calls fire once relevant events have been quiet for wait.
// It returns when ctx ends or either channel closes.
func debounceEvents(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, wait time.Duration, fire func()) {
	pending := time.NewTimer(wait)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if !relevantWatchEvent(event) {
				continue
			}
			pending.Reset(wait)

		case <-pending.C:
			fire()

		case err, ok := <-errs:
			if !ok {
				return
			}
			slog.Default().Warn("watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// relevantWatchEvent skips temp files written during saves and rewrites.
func relevantWatchEvent(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	return event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) ||
		event.Has(fsnotify.Rename)
}
