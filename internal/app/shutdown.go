package app

import (
	"context"
	"errors"
)

// Shutdown performs graceful shutdown of all components.
// It stops the application in the following order:
//  1. Drains the worker pool, waiting up to ShutdownTimeout for running jobs
//  2. Closes the job store
//
// Calling it on a stopped application is a no-op.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := a.pool.Drain(ctx); err != nil {
		a.logger.Error("in-flight jobs did not finish in time", err)
		errs = append(errs, err)
	}

	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close job store", err)
		errs = append(errs, err)
	}

	a.started = false
	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
