package workers

// Metrics returns a snapshot of the pool counters.
func (p *WorkerPool) Metrics() PoolMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

func (p *WorkerPool) record(r Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.Panicked:
		p.metrics.TasksPanicked++
		p.metrics.TasksFailed++
	case r.Error != nil:
		p.metrics.TasksFailed++
	default:
		p.metrics.TasksCompleted++
	}
	p.metrics.TotalDuration += r.Duration
}
