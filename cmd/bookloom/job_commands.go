package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bookloom/internal/admin"
	"bookloom/internal/api"
	"bookloom/internal/queue"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and control pipeline jobs",
	}
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobLogsCommand(ctx))
	jobCmd.AddCommand(newJobRequeueCommand(ctx))
	jobCmd.AddCommand(newJobControlCommand(ctx, "cancel", "Cancel a job, or ask its worker to stop", (*admin.Service).Cancel))
	jobCmd.AddCommand(newJobControlCommand(ctx, "pause", "Pause a text job at its next checkpoint", (*admin.Service).Pause))
	return jobCmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var (
		pipeline string
		statuses []string
		bookID   string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildJobFilter(pipeline, statuses, bookID, limit)
			if err != nil {
				return err
			}
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				jobs, err := svc.Jobs(cmd.Context(), filter)
				if err != nil {
					return err
				}
				items := api.SortJobsNewestFirst(api.FromJobs(jobs))
				if asJSON {
					if items == nil {
						items = []api.JobItem{}
					}
					return writeJSON(cmd, items)
				}
				printJobTable(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Only jobs of this pipeline (text, audio)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only jobs in these statuses")
	cmd.Flags().StringVar(&bookID, "book", "", "Only jobs for this book")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func buildJobFilter(pipeline string, statuses []string, bookID string, limit int) (queue.Filter, error) {
	filter := queue.Filter{SubjectID: strings.TrimSpace(bookID), Limit: limit}
	if limit < 0 {
		return filter, fmt.Errorf("--limit must not be negative")
	}
	if pipeline = strings.TrimSpace(pipeline); pipeline != "" {
		p := queue.Pipeline(strings.ToLower(pipeline))
		if !p.IsValid() {
			return filter, fmt.Errorf("unknown pipeline %q", pipeline)
		}
		filter.Pipeline = p
	}
	for _, raw := range statuses {
		status := queue.Status(strings.ToLower(strings.TrimSpace(raw)))
		if !status.IsValid() {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, nil
}

func printJobTable(out io.Writer, items []api.JobItem) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No jobs")
		return
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.BookID,
			item.Pipeline,
			item.StatusLabel,
			unitSummary(item),
			strconv.FormatInt(item.Cost, 10),
			formatLock(item),
			displayTime(item.UpdatedAt),
		})
	}
	fmt.Fprint(out, renderTable(out,
		[]string{"ID", "Book", "Pipeline", "Status", "Units", "Cost", "Lock", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				job, err := svc.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				item := api.FromJob(job)
				if asJSON {
					return writeJSON(cmd, item)
				}
				printJobDetail(cmd.OutOrStdout(), item)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printJobDetail(out io.Writer, item api.JobItem) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader("Job "+item.ID, colorize))
	fmt.Fprintf(out, "Book:       %s\n", item.BookID)
	fmt.Fprintf(out, "Pipeline:   %s\n", item.Pipeline)
	fmt.Fprintf(out, "Status:     %s (%s)\n", item.StatusLabel, item.Status)
	fmt.Fprintf(out, "Cost:       %d\n", item.Cost)
	fmt.Fprintf(out, "Attempts:   %d\n", item.Attempts)
	fmt.Fprintf(out, "Lock:       %s\n", formatLock(item))
	fmt.Fprintf(out, "Force:      %s\n", yesNo(item.ForceRegenerate))
	fmt.Fprintf(out, "Queued:     %s\n", displayTime(item.QueuedAt))
	fmt.Fprintf(out, "Started:    %s\n", displayTime(item.StartedAt))
	fmt.Fprintf(out, "Completed:  %s\n", displayTime(item.CompletedAt))
	if item.CancelRequested {
		fmt.Fprintln(out, renderStatusLine("control", statusWarn, "cancel requested", colorize))
	}
	if item.PauseRequested {
		fmt.Fprintln(out, renderStatusLine("control", statusWarn, "pause requested", colorize))
	}
	if item.Error != "" {
		fmt.Fprintln(out, renderStatusLine("error", statusError, item.Error, colorize))
	}
	if len(item.Progress.Milestones) > 0 {
		fmt.Fprintf(out, "Milestones: %s\n", strings.Join(item.Progress.Milestones, ", "))
	}
	if len(item.Progress.Units) == 0 {
		return
	}
	rows := make([][]string, 0, len(item.Progress.Units))
	for _, unit := range item.Progress.Units {
		rows = append(rows, []string{strconv.Itoa(unit.Index), strings.Join(unit.Steps, ", ")})
	}
	fmt.Fprint(out, renderTable(out, []string{"Unit", "Steps"}, rows, []columnAlignment{alignRight, alignLeft}))
}

func newJobRequeueCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Return a job to the queue",
		Long: "Return a job to the queue. Existing outputs are kept and skipped unless --force\n" +
			"is given, in which case every unit is regenerated. A forced job that stops early\n" +
			"stays forced when requeued again and keeps the units it already redid.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				job, err := svc.Requeue(cmd.Context(), args[0], force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued (%s)\n", job.ID, job.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate all outputs")
	return cmd
}

type jobControl func(*admin.Service, context.Context, string) (*queue.Job, error)

func newJobControlCommand(ctx *commandContext, name, short string, action jobControl) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <job-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				job, err := action(svc, cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if job.Status.IsTerminal() || job.Status == queue.StatusPaused {
					fmt.Fprintf(out, "Job %s %s\n", job.ID, job.Status)
					return nil
				}
				fmt.Fprintf(out, "Job %s is running; %s requested\n", job.ID, name)
				return nil
			})
		},
	}
}
