package app

import (
	"context"
	"errors"

	"github.com/aatumaykin/ytharvest/internal/app/builders"
	"github.com/aatumaykin/ytharvest/internal/metrics"
)

// ErrAlreadyInitialized is returned by a second Initialize.
var ErrAlreadyInitialized = errors.New("app already initialized")

// Initialize initializes all application components.
// It opens the job store, builds the retrieval chain, the worker pool, the
// output sink and the scheduler. The pool is started by Run and RunJob.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return ErrAlreadyInitialized
	}

	// 1. Metrics
	a.registry = newRegistry()
	a.metrics = metrics.New(metrics.Namespace, a.registry)

	// 2. Job store
	store, err := builders.NewStoreBuilder(a.config, a.logger).Build(ctx)
	if err != nil {
		return err
	}

	// 3. Retrieval chain
	fetcher, err := builders.NewRetrievalBuilder(a.config, a.logger, a.metrics).
		WithClientOptions(a.clientOpts...).
		WithFallbackBaseURL(a.fallbackURL).
		Build(ctx)
	if err != nil {
		_ = store.Close()
		return err
	}

	// 4. Scheduler with its pool and sink
	sb := builders.NewSchedulerBuilder(a.config, a.logger, a.metrics)
	calc, err := sb.BuildCalculator()
	if err != nil {
		_ = store.Close()
		return err
	}
	out, err := sb.BuildSink()
	if err != nil {
		_ = store.Close()
		return err
	}
	pool := sb.BuildPool()

	a.store = store
	a.pool = pool
	a.scheduler = sb.Build(store, calc, fetcher, pool, out)

	// 5. Mark as started
	a.started = true
	return nil
}
