// Package app provides the main application structure for ytharvest.
// It builds the job store, retrieval chain, worker pool, output sink and
// scheduler from one configuration snapshot and manages their lifecycle.
package app

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/api/option"

	"github.com/aatumaykin/ytharvest/internal/config"
	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/metrics"
	"github.com/aatumaykin/ytharvest/internal/scheduler"
	"github.com/aatumaykin/ytharvest/internal/workers"
)

// ShutdownTimeout bounds how long Run waits for in-flight jobs on exit.
const ShutdownTimeout = 30 * time.Second

// App represents the main application structure.
// It holds references to all major components and manages their lifecycle.
type App struct {
	config *config.Config
	logger *logger.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store     *jobs.Store
	pool      *workers.WorkerPool
	scheduler *scheduler.Scheduler

	clientOpts  []option.ClientOption
	fallbackURL string

	mu      sync.RWMutex
	started bool
}

// Option configures an App.
type Option func(*App)

// WithClientOptions passes options to the YouTube API client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(a *App) { a.clientOpts = append(a.clientOpts, opts...) }
}

// WithFallbackBaseURL points the scraper at another site root.
func WithFallbackBaseURL(url string) Option {
	return func(a *App) { a.fallbackURL = url }
}

// New creates a new App instance with the provided configuration and logger.
// Components are created in Initialize.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *App {
	if log == nil {
		log = logger.Discard()
	}
	a := &App{
		config: cfg,
		logger: log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Scheduler returns the scheduler. It is nil before Initialize.
func (a *App) Scheduler() *scheduler.Scheduler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scheduler
}

// Registry returns the metrics registry. It is nil before Initialize.
func (a *App) Registry() *prometheus.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}
