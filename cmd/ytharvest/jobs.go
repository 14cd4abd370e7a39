package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ytharvest/internal/app"
	"github.com/aatumaykin/ytharvest/internal/constants"
	"github.com/aatumaykin/ytharvest/internal/jobs"
)

// errJobFailed makes a failed manual run exit non-zero.
var errJobFailed = errors.New("job run failed")

var addJob jobFlags

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			printJobs(cmd.OutOrStdout(), a.Scheduler().List())
			return nil
		})
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	Long: `Add a job to the durable store. Exactly one of --channel, --video,
--playlist or --search selects what to fetch; the schedule flags select when.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := submitFlagJob(ctx, cmd, a.Scheduler(), &addJob); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), constants.MsgJobStartNote)
			return nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a job now and wait for it",
	Long: `Run a job immediately, regardless of its schedule or paused status,
and print the outcome. The next scheduled run is not changed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			outcome, err := a.RunJob(ctx, args[0])
			if err != nil && outcome.StartedAt.IsZero() {
				return notFoundHint(cmd, err)
			}
			return reportRun(cmd.OutOrStdout(), args[0], outcome, err)
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Scheduler().Pause(ctx, args[0]); err != nil {
				return notFoundHint(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), constants.MsgJobPaused, args[0])
			return nil
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Scheduler().Resume(ctx, args[0]); err != nil {
				return notFoundHint(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), constants.MsgJobResumed, args[0])
			return nil
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Scheduler().Remove(ctx, args[0]); err != nil {
				return notFoundHint(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), constants.MsgJobRemoved, args[0])
			return nil
		})
	},
}

func init() {
	addJobFlags(addCmd, &addJob)
}

func notFoundHint(cmd *cobra.Command, err error) error {
	if errors.Is(err, jobs.ErrJobNotFound) {
		fmt.Fprint(cmd.ErrOrStderr(), constants.MsgJobNotFoundHint)
	}
	return err
}

// printJobs writes the jobs as a table sorted by id.
func printJobs(w io.Writer, entries []jobs.Entry) {
	if len(entries) == 0 {
		fmt.Fprint(w, constants.MsgJobsNotFound)
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Spec.ID < entries[j].Spec.ID })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, constants.MsgJobsListHeader)
	for _, e := range entries {
		fmt.Fprintf(tw, constants.MsgJobsListRow,
			e.Spec.ID,
			e.Spec.Kind,
			e.Spec.Target,
			e.Spec.Trigger.String(),
			e.State.Status,
			formatTime(e.State.NextRun),
			formatTime(e.State.LastRun),
			formatOutcome(e.State.LastOutcome),
		)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, constants.MsgJobsTotal, len(entries))
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOutcome(o *jobs.Outcome) string {
	switch {
	case o == nil:
		return "-"
	case o.Success:
		return fmt.Sprintf("ok (%s, %d records)", o.Provenance, o.Records)
	case o.ErrorKind != "":
		return "failed (" + o.ErrorKind + ")"
	default:
		return "failed"
	}
}

// reportRun prints the outcome of a run that started. A run whose outcome
// could not be stored still fails the command.
func reportRun(w io.Writer, id string, o jobs.Outcome, err error) error {
	if printErr := printOutcome(w, id, o); printErr != nil {
		return printErr
	}
	var storeErr *jobs.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return nil
}

func printOutcome(w io.Writer, id string, o jobs.Outcome) error {
	if !o.Success {
		fmt.Fprintf(w, constants.MsgRunFailed, id, o.Attempts, o.Error)
		return fmt.Errorf("%w: %s", errJobFailed, id)
	}
	fmt.Fprintf(w, constants.MsgRunSucceeded, id, o.Records, o.Comments, o.Provenance, o.Attempts)
	return nil
}
