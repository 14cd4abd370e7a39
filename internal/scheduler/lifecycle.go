package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
)

// Submit validates spec, fills in its id and creation time when missing and
// registers it with next-run computed from the current time.
func (s *Scheduler) Submit(ctx context.Context, spec jobs.Spec) (string, error) {
	now := s.clock.Now()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	if spec.ID == "" {
		spec.ID = jobs.DefaultID(spec.Kind, spec.Target, now)
	}
	if err := spec.Validate(); err != nil {
		return "", err
	}
	if err := s.calc.Validate(spec.Trigger); err != nil {
		return "", fmt.Errorf("job %s: %w", spec.ID, err)
	}

	next, err := s.calc.Next(spec.Trigger, now)
	if err != nil {
		return "", &TriggerError{JobID: spec.ID, Err: err}
	}

	id, err := s.store.Submit(ctx, spec, next)
	if err != nil {
		return "", err
	}
	s.publishJobCounts()
	return id, nil
}

// Pause keeps the job from being dispatched. A run already in flight
// finishes normally.
func (s *Scheduler) Pause(ctx context.Context, id string) error {
	if err := s.store.Pause(ctx, id); err != nil {
		return err
	}
	s.publishJobCounts()
	return nil
}

// Resume makes a paused job eligible again. A stale next-run fires on the
// next tick; a job without one is rescheduled from now.
func (s *Scheduler) Resume(ctx context.Context, id string) error {
	entry, err := s.store.Get(id)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	fallback, err := s.calc.Next(entry.Spec.Trigger, now)
	if err != nil {
		fallback = now
	}
	if err := s.store.Resume(ctx, id, fallback); err != nil {
		return err
	}
	s.publishJobCounts()
	return nil
}

// Remove deletes the job. An in-flight run completes and its outcome is
// discarded.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.publishJobCounts()
	return nil
}

// List returns every job with its runtime state.
func (s *Scheduler) List() []jobs.Entry {
	return s.store.List()
}

// RunNow dispatches the job immediately regardless of its schedule or
// paused status. Next-run is not changed. It returns ErrAlreadyRunning when
// a run of the job is in flight.
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	entry, err := s.store.Get(id)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, entry, nil, "run_now")
}

// RunSync runs the job on the calling goroutine and returns its outcome.
// It follows the same rules as RunNow.
func (s *Scheduler) RunSync(ctx context.Context, id string) (jobs.Outcome, error) {
	entry, err := s.store.Get(id)
	if err != nil {
		return jobs.Outcome{}, err
	}
	if !s.claim(id) {
		return jobs.Outcome{}, fmt.Errorf("%w: %s", ErrAlreadyRunning, id)
	}
	defer s.release(id)

	runID := uuid.NewString()
	s.logger.Debug("job run synchronously",
		logger.Field{Key: "job_id", Value: id},
		logger.Field{Key: "run_id", Value: runID})
	return s.run(ctx, entry, nil, runID)
}
