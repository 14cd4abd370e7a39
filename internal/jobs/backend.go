package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/aatumaykin/ytharvest/internal/logger"
)

// Backend drivers accepted by OpenBackend.
const (
	DriverSQLite   = "sqlite"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// BackendConfig selects and locates a Backend.
type BackendConfig struct {
	Driver string
	Path   string // sqlite database or JSONL file
	DSN    string // postgres
}

// OpenBackend opens the backend named by cfg.Driver.
func OpenBackend(ctx context.Context, cfg BackendConfig, log *logger.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.Path)
	case DriverFile:
		path := cfg.Path
		if path == "" {
			path = JobsFilename
		}
		return NewFileBackend(path, log), nil
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a dsn")
		}
		return ConnectPostgres(ctx, cfg.DSN)
	case DriverMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
