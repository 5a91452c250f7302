package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ragkb/internal/core/ports/driving"
)

// progressInterval is how often sync progress is polled.
var progressInterval = 500 * time.Millisecond

var syncCmd = &cobra.Command{
	Use:   "sync [dir]",
	Short: "Synchronise a directory of documents",
	Long: `Walks a directory once. New files are ingested, changed files are
reindexed, and documents whose file is gone are deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runSync,
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Keep a directory synchronised",
	Long: `Synchronises a directory, then applies file changes as they happen
until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	root := args[0]
	cmd.Printf("Synchronising %s...\n", root)

	status, err := syncWithProgress(cmd.Context(), cmd, syncService, root)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	printSyncStatus(cmd, status)
	return nil
}

// syncWithProgress runs sync while displaying progress updates.
func syncWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	svc driving.SyncService,
	root string,
) (*driving.SyncStatus, error) {
	type result struct {
		status *driving.SyncStatus
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := svc.Sync(ctx, root)
		done <- result{status, err}
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	last := 0
	for {
		select {
		case r := <-done:
			if last > 0 {
				cmd.Println()
			}
			return r.status, r.err
		case <-ticker.C:
			status := svc.Status()
			seen := status.Ingested + status.Reindexed + status.Unchanged + status.Skipped
			if seen > last {
				cmd.Printf("\rProcessing... %d files", seen)
				last = seen
			}
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	if syncService == nil {
		return errors.New("sync service not configured")
	}

	root := args[0]
	cmd.Printf("Watching %s (Ctrl+C to stop)\n", root)

	if err := syncService.Watch(cmd.Context(), root); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	status := syncService.Status()
	printSyncStatus(cmd, &status)
	return nil
}
