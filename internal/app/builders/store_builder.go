// Package builders assembles ytharvest components from a configuration
// snapshot. Each builder owns one concern and is used by app.Initialize.
package builders

import (
	"context"
	"fmt"

	"github.com/aatumaykin/ytharvest/internal/config"
	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
)

type StoreBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewStoreBuilder(cfg *config.Config, log *logger.Logger) *StoreBuilder {
	return &StoreBuilder{
		config: cfg,
		logger: log,
	}
}

// Build opens the configured backend and loads every job from it.
func (b *StoreBuilder) Build(ctx context.Context) (*jobs.Store, error) {
	backendCfg := b.config.BackendConfig()
	backend, err := jobs.OpenBackend(ctx, backendCfg, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s job store: %w", backendCfg.Driver, err)
	}

	store, err := jobs.NewStore(ctx, backend, b.logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	b.logger.Info("job store opened",
		logger.Field{Key: "driver", Value: backendCfg.Driver},
		logger.Field{Key: "path", Value: backendCfg.Path},
		logger.Field{Key: "jobs", Value: len(store.List())})
	return store, nil
}
