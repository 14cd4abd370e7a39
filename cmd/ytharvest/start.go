package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/ytharvest/internal/constants"
	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/version"
)

var startJob jobFlags

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduler",
	Long: `Start the scheduler and run jobs as they come due until interrupted.
Jobs from the configuration are added on start. Passing a target flag
(--channel, --video, --playlist or --search) adds one more job first.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	addJobFlags(startCmd, &startJob)
}

func runStart(cmd *cobra.Command, args []string) error {
	a, log, cleanup, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting ytharvest", version.Fields()...)

	if err := a.Initialize(ctx); err != nil {
		return err
	}

	if startJob.hasTarget() {
		if err := submitFlagJob(ctx, cmd, a.Scheduler(), &startJob); err != nil && !errors.Is(err, jobs.ErrDuplicateJobID) {
			_ = a.Shutdown()
			return err
		}
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scheduler stopped with error", err)
		return err
	}
	log.Info("ytharvest stopped")
	return nil
}

// submitter is the part of the scheduler used to add jobs.
type submitter interface {
	Submit(ctx context.Context, spec jobs.Spec) (string, error)
}

// submitFlagJob adds the job described by f and reports it on the command
// output. A duplicate id is reported and returned as jobs.ErrDuplicateJobID.
func submitFlagJob(ctx context.Context, cmd *cobra.Command, s submitter, f *jobFlags) error {
	spec, err := f.spec(cmd, time.Now())
	if err != nil {
		return err
	}

	id, err := s.Submit(ctx, spec)
	if errors.Is(err, jobs.ErrDuplicateJobID) {
		fmt.Fprintf(cmd.OutOrStdout(), constants.MsgJobExists, spec.ID)
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), constants.MsgJobAdded, id)
	return nil
}
