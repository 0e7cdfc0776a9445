package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bookloom/internal/api"
	"bookloom/internal/daemonctl"
	"bookloom/internal/daemonrun"
)

const (
	daemonStartTimeout = 15 * time.Second
	daemonStopGrace    = 30 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run a worker in the foreground until interrupted",
		Long: "Run a worker in the foreground until interrupted.\n\n" +
			"Use the start, stop, and status subcommands to manage a background worker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(newDaemonStartCommand(ctx))
	cmd.AddCommand(newDaemonStopCommand(ctx))
	cmd.AddCommand(newDaemonStatusCommand(ctx))
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireProvider(); err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(cfg, exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.launchConfigPath(),
				LogLevel:   logLevel,
			}, daemonStartTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Worker %q already running (pid %d)\n", cfg.Workflow.WorkerName, result.PID)
			default:
				fmt.Fprintf(out, "Worker %q started (pid %d)\n", cfg.Workflow.WorkerName, result.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the worker")
	return cmd
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cfg, daemonStopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintf(out, "Worker %q is not running\n", cfg.Workflow.WorkerName)
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Worker did not stop in %s; killed pid %d. Its jobs resume after the lease expires.\n", daemonStopGrace, result.PID)
				return nil
			}
			fmt.Fprintf(out, "Worker stopped (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show background worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			state, err := daemonctl.Probe(cfg)
			if err != nil && !state.Running {
				return err
			}

			status := &api.WorkerStatus{Running: state.Running, PID: state.PID, StoreDriver: cfg.Store.Driver, LockFilePath: cfg.LockPath()}
			if state.Running {
				if live, err := daemonctl.FetchStatus(cmd.Context(), cfg); err == nil {
					status = live
				}
			}
			if status.Workflow.JobStats == nil {
				err := ctx.withStores(cmd.Context(), func(stores *daemonrun.Stores) error {
					stats, err := stores.Jobs.Stats(cmd.Context())
					if err != nil {
						return err
					}
					status.Workflow.JobStats = api.MergeJobStats(stats)
					return nil
				})
				if err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, status)
			}
			printWorkerStatus(cmd.OutOrStdout(), cfg.Workflow.WorkerName, status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printWorkerStatus(out io.Writer, name string, status *api.WorkerStatus) {
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader("Worker "+name, colorize))
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Worker", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Worker", statusInfo, "not running", colorize))
	}
	for _, lane := range status.Workflow.LaneHealth {
		kind := statusOK
		if !lane.Ready {
			kind = statusWarn
		}
		detail := lane.Detail
		if active := status.Workflow.ActiveJobs[lane.Name]; active != "" {
			detail = "working on " + active
		}
		fmt.Fprintln(out, renderStatusLine("Lane "+lane.Name, kind, detail, colorize))
	}
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
	}

	pipelines := make([]string, 0, len(status.Workflow.JobStats))
	for p := range status.Workflow.JobStats {
		pipelines = append(pipelines, p)
	}
	sort.Strings(pipelines)
	headers := []string{"Pipeline", "Pending", "Running", "Complete", "Failed", "Paused", "Cancelled"}
	rows := make([][]string, 0, len(pipelines))
	for _, p := range pipelines {
		byStatus := status.Workflow.JobStats[p]
		running := byStatus["planning"] + byStatus["planned"] + byStatus["generating"]
		rows = append(rows, []string{
			p,
			strconv.Itoa(byStatus["pending"]),
			strconv.Itoa(running),
			strconv.Itoa(byStatus["complete"]),
			strconv.Itoa(byStatus["failed"]),
			strconv.Itoa(byStatus["paused"]),
			strconv.Itoa(byStatus["cancelled"]),
		})
	}
	if len(rows) > 0 {
		fmt.Fprint(out, renderTable(out, headers, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight}))
	}
}
