// Package workers provides a bounded goroutine pool. The scheduler submits
// one task per job run; results are delivered on a channel for monitoring.
package workers

import (
	"context"
	"errors"
	"time"
)

// Task is a unit of work executed by one worker.
type Task struct {
	ID      string                          // unique per submission
	Kind    string                          // free-form label for logs, e.g. "job" or "run_now"
	Run     func(ctx context.Context) error // required
	Timeout time.Duration                   // optional per-task deadline

	// OnDrop is called instead of Run when the pool discards the task
	// unexecuted: dropped by Stop, left queued after a Drain timeout, or
	// dequeued after cancellation.
	OnDrop func()
}

// Result is the outcome of a task execution.
type Result struct {
	TaskID   string
	Kind     string
	Error    error
	Panicked bool
	Duration time.Duration
}

// PoolMetrics tracks execution counters for the pool.
type PoolMetrics struct {
	TasksSubmitted uint64
	TasksCompleted uint64
	TasksFailed    uint64
	TasksPanicked  uint64
	TasksDropped   uint64
	TotalDuration  time.Duration
}

var (
	// ErrPoolStopped is returned when submitting to a stopped or draining pool.
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrNilTask is returned for a task without a Run function.
	ErrNilTask = errors.New("task has no run function")
)

const (
	DefaultPoolSize  = 20
	DefaultQueueSize = 100
)
