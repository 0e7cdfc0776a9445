package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bookloom/internal/admin"
	"bookloom/internal/logs"
	"bookloom/internal/queue"
	"bookloom/internal/workflow"
)

func newJobLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Show the log file of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var job *queue.Job
			err = ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				job, err = svc.Job(cmd.Context(), args[0])
				return err
			})
			if err != nil {
				return err
			}
			jobLogs := workflow.NewJobLogs(cfg)
			if jobLogs == nil {
				return fmt.Errorf("paths.log_dir is not configured")
			}
			path := jobLogs.Path(job)

			out := cmd.OutOrStdout()
			emit := func(line string) {
				if !raw {
					line = logs.FormatLine(line)
				}
				fmt.Fprintln(out, line)
			}

			tail, offset, err := logs.Tail(path, lines)
			if err != nil {
				return err
			}
			if len(tail) == 0 && !follow {
				fmt.Fprintf(out, "No log entries for job %s\n", job.ID)
				return nil
			}
			for _, line := range tail {
				emit(line)
			}
			if !follow {
				return nil
			}
			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return logs.Follow(followCtx, path, offset, 500*time.Millisecond, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records unformatted")
	return cmd
}
