package workers

import (
	"context"
	"sync"

	"github.com/aatumaykin/ytharvest/internal/logger"
)

// WorkerPool manages a fixed number of goroutines consuming a task queue.
type WorkerPool struct {
	taskQueue chan Task
	resultCh  chan Result
	workers   int
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *logger.Logger

	// intake guards taskQueue against sends after Drain closed it.
	intake  sync.RWMutex
	closed  bool
	started bool

	mu       sync.RWMutex
	metrics  PoolMetrics
	observer func(Result)
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithObserver is called synchronously by the worker after every task.
func WithObserver(fn func(Result)) Option {
	return func(p *WorkerPool) { p.observer = fn }
}

// NewPool creates a pool with the given worker count and queue size.
func NewPool(workers int, bufferSize int, log *logger.Logger, opts ...Option) *WorkerPool {
	if workers <= 0 {
		workers = DefaultPoolSize
	}
	if bufferSize < 0 {
		bufferSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		taskQueue: make(chan Task, bufferSize),
		resultCh:  make(chan Result, max(bufferSize, workers)),
		workers:   workers,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the worker goroutines. Calling it twice is a no-op.
func (p *WorkerPool) Start() {
	p.intake.Lock()
	defer p.intake.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.logger.Info("starting worker pool",
		logger.Field{Key: "workers", Value: p.workers},
		logger.Field{Key: "buffer_size", Value: cap(p.taskQueue)})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues task, blocking while the queue is full until ctx is done.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if task.Run == nil {
		return ErrNilTask
	}

	p.intake.RLock()
	defer p.intake.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}

	p.mu.Lock()
	p.metrics.TasksSubmitted++
	p.mu.Unlock()

	p.logger.DebugCtx(ctx, "task submitted",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "task_kind", Value: task.Kind})
	return nil
}

// Results returns a read-only channel of task results. Results are dropped
// when nobody keeps up with the channel. It is closed once the pool stopped.
func (p *WorkerPool) Results() <-chan Result {
	return p.resultCh
}

// Drain stops intake and lets the workers finish every queued task. When ctx
// ends first, running tasks are cancelled and Drain returns ctx.Err().
func (p *WorkerPool) Drain(ctx context.Context) error {
	if !p.closeIntake() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.cancel()
		<-done
	}
	p.finish()
	return err
}

// Stop cancels running tasks, drops queued ones and waits for the workers.
func (p *WorkerPool) Stop() {
	p.cancel()
	if !p.closeIntake() {
		return
	}
	p.wg.Wait()
	p.finish()
}

func (p *WorkerPool) closeIntake() bool {
	p.intake.Lock()
	defer p.intake.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	close(p.taskQueue)
	if !p.started {
		// nothing will ever consume the queue
		p.cancel()
	}
	return true
}

func (p *WorkerPool) finish() {
	p.cancel()
	dropped := 0
	for task := range p.taskQueue {
		p.drop(task)
		dropped++
	}

	metrics := p.Metrics()
	p.logger.Info("worker pool stopped",
		logger.Field{Key: "tasks_submitted", Value: metrics.TasksSubmitted},
		logger.Field{Key: "tasks_completed", Value: metrics.TasksCompleted},
		logger.Field{Key: "tasks_failed", Value: metrics.TasksFailed},
		logger.Field{Key: "tasks_dropped", Value: dropped})

	close(p.resultCh)
}

// drop hands an unexecuted task back to its owner.
func (p *WorkerPool) drop(task Task) {
	p.mu.Lock()
	p.metrics.TasksDropped++
	p.mu.Unlock()

	p.logger.Debug("task dropped",
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "task_kind", Value: task.Kind})
	if task.OnDrop != nil {
		task.OnDrop()
	}
}

// WorkerCount returns the number of workers.
func (p *WorkerPool) WorkerCount() int {
	return p.workers
}

// QueueSize returns the number of tasks waiting in the queue.
func (p *WorkerPool) QueueSize() int {
	return len(p.taskQueue)
}
