package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/metrics"
)

// ErrNotInitialized is returned by operations that need Initialize first.
var ErrNotInitialized = errors.New("app not initialized")

// Run starts the application and blocks until the context is cancelled or
// the job store fails.
// It performs the following steps:
//  1. Initializes all components via Initialize() unless already done
//  2. Submits the jobs from the configuration via SeedJobs()
//  3. Starts the worker pool, the scheduler and the metrics listener
//  4. Waits for the context to be cancelled
//  5. Drains in-flight jobs via Shutdown()
func (a *App) Run(ctx context.Context) error {
	if !a.isStarted() {
		if err := a.Initialize(ctx); err != nil {
			return err
		}
	}

	if _, err := a.SeedJobs(ctx); err != nil {
		_ = a.Shutdown()
		return err
	}

	a.pool.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.scheduler.Start(gctx)
	})
	if listen := a.config.Metrics.Listen; listen != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, listen, a.registry, a.logger)
		})
	}

	a.logger.Info("application is running",
		logger.Field{Key: "jobs", Value: len(a.store.List())},
		logger.Field{Key: "workers", Value: a.pool.WorkerCount()})

	runErr := g.Wait()
	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// SeedJobs submits the [[jobs]] from the configuration. A job whose id is
// already stored, or an unnamed job matching a stored job's type, target and
// trigger, is left alone so the stored state wins. It returns the number of
// jobs added.
func (a *App) SeedJobs(ctx context.Context) (int, error) {
	if !a.isStarted() {
		return 0, ErrNotInitialized
	}

	specs, err := a.config.JobSpecs(time.Now())
	if err != nil {
		return 0, err
	}

	existing := a.store.List()
	added := 0
	for i, spec := range specs {
		named := a.config.Jobs[i].ID != ""
		if known(existing, spec, named) {
			a.logger.Debug("configured job already stored", logger.Field{Key: "job_id", Value: spec.ID})
			continue
		}
		id, err := a.scheduler.Submit(ctx, spec)
		if err != nil {
			return added, fmt.Errorf("failed to submit configured job %s: %w", spec.ID, err)
		}
		a.logger.Info("configured job added",
			logger.Field{Key: "job_id", Value: id},
			logger.Field{Key: "type", Value: spec.Kind},
			logger.Field{Key: "trigger", Value: spec.Trigger.String()})
		added++
	}
	return added, nil
}

func known(existing []jobs.Entry, spec jobs.Spec, named bool) bool {
	for _, e := range existing {
		if e.Spec.ID == spec.ID {
			return true
		}
		if !named && e.Spec.Kind == spec.Kind && e.Spec.Target == spec.Target &&
			e.Spec.Trigger.String() == spec.Trigger.String() {
			return true
		}
	}
	return false
}

// RunJob runs one job immediately on the calling goroutine and returns its
// outcome. The pool is not needed; scheduling state other than the outcome
// is left unchanged.
func (a *App) RunJob(ctx context.Context, id string) (jobs.Outcome, error) {
	if !a.isStarted() {
		return jobs.Outcome{}, ErrNotInitialized
	}
	return a.scheduler.RunSync(ctx, id)
}

func (a *App) isStarted() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}
