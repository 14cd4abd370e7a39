// Package metrics exposes scheduler and retrieval counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aatumaykin/ytharvest/internal/logger"
)

// Namespace prefixes every metric name.
const Namespace = "ytharvest"

// Metrics holds the registered collectors.
type Metrics struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	fetches       *prometheus.CounterVec
	fetchAttempts prometheus.Histogram
	gateWait      prometheus.Histogram
	inFlight      prometheus.Gauge
	jobs          *prometheus.GaugeVec
	quotaUnits    prometheus.Counter
	sinkWrites    *prometheus.CounterVec
	tasks         *prometheus.CounterVec
}

// New creates the collectors and registers them on reg (the default
// registerer when nil).
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Job runs by job type and outcome",
			},
			[]string{"type", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time of a job run including comment fan-out",
				Buckets:   []float64{.5, 1, 5, 10, 30, 60, 120, 300, 900},
			},
			[]string{"type"},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Retrieval executions by target, provenance and error kind",
			},
			[]string{"target", "provenance", "error_kind"},
		),
		fetchAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_attempts",
				Help:      "Source calls spent per retrieval execution",
				Buckets:   []float64{1, 2, 3, 4, 5, 8},
			},
		),
		gateWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_gate_wait_seconds",
				Help:      "Time callers spent blocked in the rate gate",
				Buckets:   []float64{0, .1, .5, 1, 2, 5, 10, 30},
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_in_flight",
				Help:      "Jobs currently executing",
			},
		),
		jobs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs",
				Help:      "Registered jobs by status",
			},
			[]string{"status"},
		),
		quotaUnits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_quota_units_total",
				Help:      "Estimated YouTube Data API quota units spent",
			},
		),
		sinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_writes_total",
				Help:      "Output files written by data type and result",
			},
			[]string{"data_type", "result"},
		),
		tasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_tasks_total",
				Help:      "Worker pool tasks by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.fetches,
		m.fetchAttempts,
		m.gateWait,
		m.inFlight,
		m.jobs,
		m.quotaUnits,
		m.sinkWrites,
		m.tasks,
	)
	return m
}

// RecordJobRun counts one finished job run.
func (m *Metrics) RecordJobRun(jobType string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(jobType, outcome(success)).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordFetch counts one retrieval execution. errorKind is empty on success.
func (m *Metrics) RecordFetch(target, provenance, errorKind string, attempts int) {
	if m == nil {
		return
	}
	if errorKind == "" {
		errorKind = "none"
	}
	if provenance == "" {
		provenance = "none"
	}
	m.fetches.WithLabelValues(target, provenance, errorKind).Inc()
	m.fetchAttempts.Observe(float64(attempts))
}

// ObserveGateWait records time spent waiting for the rate gate.
func (m *Metrics) ObserveGateWait(d time.Duration) {
	if m == nil {
		return
	}
	m.gateWait.Observe(d.Seconds())
}

// SetInFlight sets the number of executing jobs.
func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

// SetJobCounts replaces the per-status job gauges.
func (m *Metrics) SetJobCounts(byStatus map[string]int) {
	if m == nil {
		return
	}
	m.jobs.Reset()
	for status, n := range byStatus {
		m.jobs.WithLabelValues(status).Set(float64(n))
	}
}

// AddQuota adds estimated API quota units.
func (m *Metrics) AddQuota(units int) {
	if m == nil {
		return
	}
	m.quotaUnits.Add(float64(units))
}

// RecordSinkWrite counts one output file write attempt.
func (m *Metrics) RecordSinkWrite(dataType string, err error) {
	if m == nil {
		return
	}
	m.sinkWrites.WithLabelValues(dataType, outcome(err == nil)).Inc()
}

// RecordTask counts one worker pool task.
func (m *Metrics) RecordTask(err error, panicked bool) {
	if m == nil {
		return
	}
	result := outcome(err == nil)
	if panicked {
		result = "panic"
	}
	m.tasks.WithLabelValues(result).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Serve exposes /metrics from g on listen until ctx is cancelled.
func Serve(ctx context.Context, listen string, g prometheus.Gatherer, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listener started", logger.Field{Key: "listen", Value: listen})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
