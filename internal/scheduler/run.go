package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/retrieval"
	"github.com/aatumaykin/ytharvest/internal/sink"
	"github.com/aatumaykin/ytharvest/internal/workers"
)

// dispatch claims the job and submits one run to the pool. A nil next keeps
// the stored next-run.
func (s *Scheduler) dispatch(ctx context.Context, entry jobs.Entry, next *time.Time, reason string) error {
	spec := entry.Spec
	if !s.claim(spec.ID) {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, spec.ID)
	}

	runID := uuid.NewString()
	task := workers.Task{
		ID:      runID,
		Kind:    reason,
		Timeout: s.cfg.TaskTimeout,
		Run: func(taskCtx context.Context) error {
			defer s.release(spec.ID)
			_, err := s.run(taskCtx, entry, next, runID)
			return err
		},
		OnDrop: func() {
			s.logger.Warn("queued run dropped by pool",
				logger.Field{Key: "job_id", Value: spec.ID},
				logger.Field{Key: "run_id", Value: runID})
			s.release(spec.ID)
		},
	}
	if err := s.pool.Submit(ctx, task); err != nil {
		s.release(spec.ID)
		return err
	}

	s.logger.Debug("job dispatched",
		logger.Field{Key: "job_id", Value: spec.ID},
		logger.Field{Key: "run_id", Value: runID},
		logger.Field{Key: "reason", Value: reason})
	return nil
}

// run executes one job, writes its results and records the outcome against
// the generation the job had when it was dispatched.
func (s *Scheduler) run(ctx context.Context, entry jobs.Entry, next *time.Time, runID string) (jobs.Outcome, error) {
	spec := entry.Spec
	log := s.logger.With(
		logger.Field{Key: "job_id", Value: spec.ID},
		logger.Field{Key: "type", Value: spec.Kind},
		logger.Field{Key: "run_id", Value: runID})

	started := s.clock.Now()
	req := retrieval.Request{
		Target:          retrieval.Target(spec.Kind),
		ID:              spec.Target,
		IncludeComments: spec.IncludeComments,
		MaxResults:      spec.MaxResults,
	}
	if req.MaxResults <= 0 {
		req.MaxResults = s.cfg.MaxResults
	}

	log.Info("job started", logger.Field{Key: "target", Value: spec.Target})
	res, fetchErr := s.fetcher.Execute(ctx, req)

	if errors.Is(fetchErr, context.Canceled) && ctx.Err() != nil {
		// shutdown: leave next-run untouched so the job fires after restart
		log.Warn("job interrupted", logger.Field{Key: "attempts", Value: res.Attempts})
		return jobs.Outcome{}, fetchErr
	}

	outcome := jobs.Outcome{
		Success:    fetchErr == nil,
		Error:      retrieval.Summary(fetchErr),
		ErrorKind:  retrieval.Kind(fetchErr),
		Provenance: string(res.Provenance),
		Records:    res.Count,
		Attempts:   res.Attempts,
		StartedAt:  started,
	}

	if fetchErr != nil {
		log.Error("job failed", fetchErr,
			logger.Field{Key: "kind", Value: outcome.ErrorKind},
			logger.Field{Key: "attempts", Value: res.Attempts})
	} else {
		s.write(ctx, log, res.Records, sink.Meta{Kind: string(spec.Kind), Target: spec.Target, At: started})
		if spec.IncludeComments {
			outcome.Comments = s.fanOutComments(ctx, log, spec, res.Records)
		}
		log.Info("job succeeded",
			logger.Field{Key: "provenance", Value: outcome.Provenance},
			logger.Field{Key: "records", Value: outcome.Records},
			logger.Field{Key: "comments", Value: outcome.Comments},
			logger.Field{Key: "attempts", Value: outcome.Attempts})
	}

	s.metrics.RecordJobRun(string(spec.Kind), outcome.Success, s.clock.Now().Sub(started))

	// the outcome must be stored even when the run was cut short
	if err := s.store.RecordOutcome(context.WithoutCancel(ctx), spec.ID, entry.State.Generation, outcome, next); err != nil {
		if isStoreError(err) {
			s.fail(err)
		}
		return outcome, err
	}
	return outcome, fetchErr
}

// write hands records to the sink. Failures are logged, never returned.
func (s *Scheduler) write(ctx context.Context, log *logger.Logger, records []retrieval.Record, meta sink.Meta) {
	if s.sink == nil {
		return
	}
	path, err := s.sink.Write(ctx, records, meta)
	s.metrics.RecordSinkWrite(sink.DataType(meta.Kind), err)
	if err != nil {
		log.Error("writing results failed", err,
			logger.Field{Key: "data_type", Value: sink.DataType(meta.Kind)},
			logger.Field{Key: "records", Value: len(records)})
		return
	}
	log.Debug("results written", logger.Field{Key: "path", Value: path})
}

// fanOutComments fetches comments for every video of a successful run and
// returns the number of comment records written. A failed video is logged
// and skipped.
func (s *Scheduler) fanOutComments(ctx context.Context, log *logger.Logger, spec jobs.Spec, records []retrieval.Record) int {
	var videoIDs []string
	if spec.Kind == jobs.KindVideo {
		videoIDs = []string{spec.Target}
	} else {
		seen := map[string]bool{}
		for _, r := range records {
			id, _ := r[retrieval.FieldVideoID].(string)
			if id != "" && !seen[id] {
				seen[id] = true
				videoIDs = append(videoIDs, id)
			}
		}
	}

	total := 0
	for _, videoID := range videoIDs {
		if ctx.Err() != nil {
			break
		}
		res, err := s.fetcher.Execute(ctx, retrieval.Request{
			Target:     retrieval.TargetComments,
			ID:         videoID,
			MaxResults: s.cfg.CommentCount,
		})
		if err != nil {
			log.Warn("comment fetch failed",
				logger.Field{Key: "video_id", Value: videoID},
				logger.Field{Key: "kind", Value: retrieval.Kind(err)},
				logger.Field{Key: "attempts", Value: res.Attempts},
				logger.Field{Key: "error", Value: retrieval.Summary(err)})
			continue
		}
		s.write(ctx, log, res.Records, sink.Meta{Kind: string(retrieval.TargetComments), Target: videoID, At: s.clock.Now()})
		total += res.Count
	}
	return total
}
