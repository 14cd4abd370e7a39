package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "YTHARVEST_"

// DefaultEnvFile is loaded from the working directory when present.
const DefaultEnvFile = ".env"

// LoadEnv загружает переменные окружения из .env файла.
// Variables already set in the process environment are not overwritten.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadEnvOptional loads path like LoadEnv but ignores a missing file.
func LoadEnvOptional(path string) error {
	err := LoadEnv(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// applyEnvOverrides parses YTHARVEST_<SECTION>_<FIELD> variables onto each
// section. Unset variables leave the file values alone. Jobs cannot be
// overridden from the environment.
func applyEnvOverrides(c *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"SCRAPER_", &c.Scraper},
		{"SCHEDULER_", &c.Scheduler},
		{"STORE_", &c.Store},
		{"OUTPUT_", &c.Output},
		{"LOGGING_", &c.Logging},
		{"METRICS_", &c.Metrics},
	}
	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: EnvPrefix + s.prefix}); err != nil {
			return err
		}
	}
	return nil
}
