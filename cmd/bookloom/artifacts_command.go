package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bookloom/internal/artifacts"
	"bookloom/internal/daemonrun"
	"bookloom/internal/logging"
	"bookloom/internal/queue"
)

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and reclaim artifact storage",
	}
	cmd.AddCommand(newArtifactsListCommand(ctx))
	cmd.AddCommand(newArtifactsPruneCommand(ctx))
	return cmd
}

func newArtifactsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show disk usage per book",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(cmd.Context(), func(stores *daemonrun.Stores) error {
				dirs, err := artifacts.NewLayout(ctx.config.Paths.ArtifactDir).ListBookDirs()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(dirs) == 0 {
					fmt.Fprintln(out, "No artifacts")
					return nil
				}
				known, err := knownBooks(cmd.Context(), stores)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(dirs))
				var total int64
				for _, dir := range dirs {
					_, ok := known[dir.BookID]
					rows = append(rows, []string{
						dir.BookID,
						formatBytes(dir.Size),
						dir.ModTime.Local().Format("2006-01-02 15:04"),
						yesNo(!ok),
					})
					total += dir.Size
				}
				fmt.Fprint(out, renderTable(out, []string{"Book", "Size", "Modified", "Orphaned"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft}))
				fmt.Fprintf(out, "Total: %s\n", formatBytes(total))
				return nil
			})
		},
	}
}

func newArtifactsPruneCommand(ctx *commandContext) *cobra.Command {
	var (
		stale  time.Duration
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove artifacts of deleted books and abandoned narration parts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stale < 0 {
				return fmt.Errorf("--stale must not be negative")
			}
			return ctx.withStores(cmd.Context(), func(stores *daemonrun.Stores) error {
				known, err := knownBooks(cmd.Context(), stores)
				if err != nil {
					return err
				}
				busy, err := busyBooks(cmd.Context(), stores)
				if err != nil {
					return err
				}
				layout := artifacts.NewLayout(ctx.config.Paths.ArtifactDir)
				result := layout.Prune(cmd.Context(), artifacts.PruneOptions{
					Known:      known,
					Busy:       busy,
					MaxPartAge: stale,
					DryRun:     dryRun,
				}, logging.NewNop())

				out := cmd.OutOrStdout()
				verb := "Removed"
				if dryRun {
					verb = "Would remove"
				}
				for _, path := range result.Removed {
					fmt.Fprintf(out, "%s %s\n", verb, path)
				}
				for _, failure := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "Failed %s: %v\n", failure.Path, failure.Error)
				}
				if len(result.Removed) == 0 && len(result.Errors) == 0 {
					fmt.Fprintln(out, "Nothing to prune")
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d artifact directories could not be removed", len(result.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&stale, "stale", 72*time.Hour, "Age after which unfinished narration parts are removed (0 disables)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without deleting")
	return cmd
}

func knownBooks(ctx context.Context, stores *daemonrun.Stores) (map[string]struct{}, error) {
	books, err := stores.Library.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(books))
	for _, book := range books {
		known[book.ID] = struct{}{}
	}
	return known, nil
}

// busyBooks returns the books whose narration may still write parts.
func busyBooks(ctx context.Context, stores *daemonrun.Stores) (map[string]struct{}, error) {
	jobs, err := stores.Jobs.List(ctx, queue.Filter{
		Pipeline: queue.PipelineAudio,
		Statuses: queue.ClaimableStatuses(),
	})
	if err != nil {
		return nil, err
	}
	busy := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		busy[job.SubjectID] = struct{}{}
	}
	return busy, nil
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
