package builders

import (
	"fmt"

	"github.com/aatumaykin/ytharvest/internal/config"
	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/metrics"
	"github.com/aatumaykin/ytharvest/internal/scheduler"
	"github.com/aatumaykin/ytharvest/internal/sink"
	"github.com/aatumaykin/ytharvest/internal/trigger"
	"github.com/aatumaykin/ytharvest/internal/workers"
)

type SchedulerBuilder struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewSchedulerBuilder(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *SchedulerBuilder {
	return &SchedulerBuilder{
		config:  cfg,
		logger:  log,
		metrics: m,
	}
}

// BuildCalculator evaluates cron triggers in the configured timezone.
func (b *SchedulerBuilder) BuildCalculator() (*trigger.Calculator, error) {
	loc, err := b.config.Location()
	if err != nil {
		return nil, err
	}
	day, err := b.config.Weekday()
	if err != nil {
		return nil, err
	}
	return trigger.NewCalculator(trigger.WithLocation(loc), trigger.WithFirstWeekday(day)), nil
}

// BuildPool creates the worker pool jobs run on. It is not started.
func (b *SchedulerBuilder) BuildPool() *workers.WorkerPool {
	m := b.metrics
	return workers.NewPool(b.config.Scheduler.MaxThreads, b.config.Scheduler.QueueSize, b.logger,
		workers.WithObserver(func(r workers.Result) {
			m.RecordTask(r.Error, r.Panicked)
		}))
}

// BuildSink creates the result writer.
func (b *SchedulerBuilder) BuildSink() (*sink.FileSink, error) {
	out, err := sink.NewFileSink(sink.Config{
		Directory: b.config.Output.Directory,
		Format:    b.config.Output.Format,
	}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create output sink: %w", err)
	}
	return out, nil
}

// Build assembles the scheduler.
func (b *SchedulerBuilder) Build(store *jobs.Store, calc *trigger.Calculator, fetcher scheduler.Fetcher, pool scheduler.Pool, out sink.Sink) *scheduler.Scheduler {
	cfg := scheduler.Config{
		TickInterval: b.config.TickInterval(),
		MaxResults:   b.config.Scraper.MaxResults,
		CommentCount: b.config.Scraper.CommentCount,
		TaskTimeout:  b.config.TaskTimeout(),
	}

	return scheduler.New(cfg, store, calc, fetcher, pool,
		scheduler.WithSink(out),
		scheduler.WithMetrics(b.metrics),
		scheduler.WithLogger(b.logger),
		scheduler.WithTriggerErrorHandler(func(e *scheduler.TriggerError) {
			b.logger.Warn("job paused, trigger has no further fire times",
				logger.Field{Key: "job_id", Value: e.JobID},
				logger.Field{Key: "error", Value: e.Err.Error()})
		}),
	)
}
