// Package scheduler polls the job store for due jobs and runs each one on the
// worker pool through the retrieval fetcher.
//
// Per job the state machine is scheduled -> dispatched -> succeeded|failed ->
// scheduled. A job is never dispatched while a previous run of the same id is
// still in flight. Next-run is computed from the tick time at dispatch, so
// missed intervals fire once and the cadence restarts from that tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/metrics"
	"github.com/aatumaykin/ytharvest/internal/retrieval"
	"github.com/aatumaykin/ytharvest/internal/sink"
	"github.com/aatumaykin/ytharvest/internal/trigger"
	"github.com/aatumaykin/ytharvest/internal/workers"
)

const (
	DefaultTickInterval = time.Second
	DefaultMaxResults   = 50
	DefaultCommentCount = 100
)

// ErrAlreadyRunning is returned by RunNow when the job is in flight.
var ErrAlreadyRunning = errors.New("job already running")

// TriggerError reports a job whose trigger can no longer produce a fire
// time. The job is paused; other jobs are unaffected.
type TriggerError struct {
	JobID string
	Err   error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *TriggerError) Unwrap() error { return e.Err }

// Clock supplies the tick time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Fetcher executes one retrieval request. *retrieval.Fetcher implements it.
type Fetcher interface {
	Execute(ctx context.Context, req retrieval.Request) (retrieval.Result, error)
}

// Pool runs tasks with bounded concurrency. *workers.WorkerPool implements it.
type Pool interface {
	Submit(ctx context.Context, task workers.Task) error
}

// Config holds scheduler settings taken from the configuration snapshot.
type Config struct {
	TickInterval time.Duration
	MaxResults   int // per job, when the spec does not set one
	CommentCount int // per video during comment fan-out
	TaskTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.CommentCount <= 0 {
		c.CommentCount = DefaultCommentCount
	}
}

// Scheduler owns the poll loop and the in-flight set.
type Scheduler struct {
	cfg     Config
	store   *jobs.Store
	calc    *trigger.Calculator
	fetcher Fetcher
	pool    Pool
	sink    sink.Sink
	metrics *metrics.Metrics
	logger  *logger.Logger
	clock   Clock

	onTriggerError func(*TriggerError)

	mu       sync.Mutex
	inFlight map[string]struct{}
	running  sync.WaitGroup

	fatal     chan error
	fatalOnce sync.Once
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithSink sets where successful results are written. Without one results
// are only counted.
func WithSink(out sink.Sink) Option {
	return func(s *Scheduler) { s.sink = out }
}

// WithMetrics records job runs, in-flight count and sink writes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithTriggerErrorHandler is called after a job was paused because its
// trigger failed.
func WithTriggerErrorHandler(fn func(*TriggerError)) Option {
	return func(s *Scheduler) { s.onTriggerError = fn }
}

// New creates a Scheduler.
func New(cfg Config, store *jobs.Store, calc *trigger.Calculator, fetcher Fetcher, pool Pool, opts ...Option) *Scheduler {
	cfg.applyDefaults()
	s := &Scheduler{
		cfg:      cfg,
		store:    store,
		calc:     calc,
		fetcher:  fetcher,
		pool:     pool,
		logger:   logger.Discard(),
		clock:    systemClock{},
		inFlight: make(map[string]struct{}),
		fatal:    make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the poll loop until ctx is cancelled or the job store fails.
// It returns nil on cancellation and the *jobs.StoreError otherwise.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		logger.Field{Key: "tick_interval", Value: s.cfg.TickInterval.String()},
		logger.Field{Key: "jobs", Value: len(s.store.List())})
	s.publishJobCounts()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop(gctx)
	})
	g.Go(func() error {
		select {
		case err := <-s.fatal:
			return err
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx, s.clock.Now()); err != nil {
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// Tick dispatches every due job that is not already in flight and returns
// the dispatched ids. Only a job store failure is returned as an error.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) ([]string, error) {
	var dispatched []string
	for _, id := range s.store.Due(now) {
		if ctx.Err() != nil {
			break
		}
		if s.isInFlight(id) {
			s.logger.Debug("job still running, skipping tick", logger.Field{Key: "job_id", Value: id})
			continue
		}

		entry, err := s.store.Get(id)
		if err != nil {
			// removed between Due and Get
			continue
		}

		next, err := s.calc.Next(entry.Spec.Trigger, now)
		if err != nil {
			if storeErr := s.handleTriggerError(ctx, entry, now, err); storeErr != nil {
				return dispatched, storeErr
			}
			continue
		}

		if err := s.dispatch(ctx, entry, &next, "scheduled"); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				continue
			}
			s.logger.Error("dispatch failed", err, logger.Field{Key: "job_id", Value: id})
			continue
		}
		dispatched = append(dispatched, id)
	}
	return dispatched, nil
}

// handleTriggerError pauses the job and records the failure on it.
func (s *Scheduler) handleTriggerError(ctx context.Context, entry jobs.Entry, now time.Time, cause error) error {
	spec := entry.Spec
	terr := &TriggerError{JobID: spec.ID, Err: cause}
	s.logger.Error("trigger failed, pausing job", cause,
		logger.Field{Key: "job_id", Value: spec.ID},
		logger.Field{Key: "trigger", Value: spec.Trigger.String()})

	if err := s.store.Pause(ctx, spec.ID); err != nil {
		if isStoreError(err) {
			return err
		}
		return nil
	}
	outcome := jobs.Outcome{
		Error:     retrieval.Summary(terr),
		ErrorKind: triggerErrorKind(cause),
		StartedAt: now,
	}
	if err := s.store.RecordOutcome(ctx, spec.ID, entry.State.Generation, outcome, nil); err != nil {
		return err
	}

	s.publishJobCounts()
	if s.onTriggerError != nil {
		s.onTriggerError(terr)
	}
	return nil
}

func triggerErrorKind(err error) string {
	if errors.Is(err, trigger.ErrTriggerUnsatisfiable) {
		return "trigger_unsatisfiable"
	}
	return "invalid_trigger"
}

// fail reports a fatal store error to Start. Only the first one is kept.
func (s *Scheduler) fail(err error) {
	s.fatalOnce.Do(func() {
		s.logger.Error("job store failed, stopping scheduler", err)
		s.fatal <- err
	})
}

func isStoreError(err error) bool {
	var storeErr *jobs.StoreError
	return errors.As(err, &storeErr)
}

func (s *Scheduler) isInFlight(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[id]
	return ok
}

// claim marks id as in flight. It reports false when it already was.
func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[id]; ok {
		return false
	}
	s.inFlight[id] = struct{}{}
	s.running.Add(1)
	s.metrics.SetInFlight(len(s.inFlight))
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	n := len(s.inFlight)
	s.mu.Unlock()

	s.metrics.SetInFlight(n)
	s.running.Done()
}

// InFlight returns the ids currently executing.
func (s *Scheduler) InFlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.inFlight))
	for id := range s.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// WaitIdle blocks until no run is in flight or ctx is done.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) publishJobCounts() {
	if s.metrics == nil {
		return
	}
	counts := map[string]int{}
	for _, e := range s.store.List() {
		counts[string(e.State.Status)]++
	}
	s.metrics.SetJobCounts(counts)
}
