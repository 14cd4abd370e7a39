package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/ytharvest/internal/logger"
)

// worker processes tasks until the queue is closed or the pool is cancelled.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.DebugCtx(p.ctx, "worker started",
		logger.Field{Key: "worker_id", Value: id})

	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				p.logger.DebugCtx(p.ctx, "worker drained",
					logger.Field{Key: "worker_id", Value: id})
				return
			}
			p.processTask(id, task)

		case <-p.ctx.Done():
			p.logger.DebugCtx(p.ctx, "worker stopping",
				logger.Field{Key: "worker_id", Value: id})
			return
		}
	}
}

// processTask runs one task and publishes its result.
func (p *WorkerPool) processTask(workerID int, task Task) {
	if p.ctx.Err() != nil {
		p.drop(task)
		return
	}

	startTime := time.Now()

	result := p.executeTask(task)
	result.Duration = time.Since(startTime)

	p.record(result)
	if p.observer != nil {
		p.observer(result)
	}

	select {
	case p.resultCh <- result:
	default:
		p.logger.Debug("result channel full, dropping result",
			logger.Field{Key: "task_id", Value: task.ID})
	}

	p.logger.DebugCtx(p.ctx, "task processed",
		logger.Field{Key: "worker_id", Value: workerID},
		logger.Field{Key: "task_id", Value: task.ID},
		logger.Field{Key: "duration_ms", Value: result.Duration.Milliseconds()},
		logger.Field{Key: "error", Value: result.Error})
}

// executeTask runs task.Run, converting a panic into a failed result.
func (p *WorkerPool) executeTask(task Task) (result Result) {
	result = Result{TaskID: task.ID, Kind: task.Kind}

	ctx := p.ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("panic during task execution: %v", r)
			result.Panicked = true
			p.logger.ErrorCtx(ctx, "task panic recovered", result.Error,
				logger.Field{Key: "task_id", Value: task.ID},
				logger.Field{Key: "task_kind", Value: task.Kind})
		}
	}()

	result.Error = task.Run(ctx)
	return result
}
