package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/trigger"
)

// DefaultPath is the configuration file used when none is given.
const DefaultPath = "config.toml"

// Default returns a configuration with every section default filled in.
// Files are decoded on top of it, so explicit zero values survive.
func Default() *Config {
	return &Config{
		Scraper: ScraperConfig{
			APIKeyEnvVar:       "YOUTUBE_API_KEY",
			MaxResults:         50,
			CommentCount:       100,
			RateLimitPause:     1,
			MaxRetries:         2,
			HTTPTimeoutSeconds: 30,
		},
		Scheduler: SchedulerConfig{
			TickIntervalSeconds: 1,
			MaxThreads:          20,
			MaxProcesses:        5,
			QueueSize:           100,
			Timezone:            "UTC",
			FirstWeekday:        "sunday",
		},
		Store: StoreConfig{
			Driver: jobs.DriverSQLite,
		},
		Output: OutputConfig{
			Directory: "data",
			Format:    "json",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Directory: "logs",
		},
	}
}

// Load загружает конфигурацию из TOML или YAML файла
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(cfg)
	expandEnvVars(cfg)

	return cfg, nil
}

// LoadDefaults returns the built-in defaults with environment overrides
// applied, for running without a config file.
func LoadDefaults() (*Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	applyDefaults(cfg)
	expandEnvVars(cfg)
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys: %v", undecoded)
		}
		return nil
	}
}

// applyDefaults fills values that depend on other settings and normalizes case.
func applyDefaults(c *Config) {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = jobs.DriverSQLite
	}
	if c.Store.Path == "" {
		switch c.Store.Driver {
		case jobs.DriverSQLite:
			c.Store.Path = "jobs.sqlite"
		case jobs.DriverFile:
			c.Store.Path = jobs.JobsFilename
		}
	}

	c.Output.Format = strings.ToLower(c.Output.Format)
	if c.Output.Format == "" {
		c.Output.Format = "json"
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "UTC"
	}

	for i := range c.Jobs {
		j := &c.Jobs[i]
		j.Type = strings.ToLower(strings.TrimSpace(j.Type))
		j.ScheduleType = strings.ToLower(strings.TrimSpace(j.ScheduleType))
	}
}

// expandEnvVars расширяет переменные окружения в конфигурации
func expandEnvVars(c *Config) {
	c.Scraper.APIKey = expandEnv(c.Scraper.APIKey)
	c.Store.DSN = expandEnv(c.Store.DSN)

	c.Store.Path = expandHome(expandEnv(c.Store.Path))
	c.Output.Directory = expandHome(expandEnv(c.Output.Directory))
	c.Logging.Output = expandHome(expandEnv(c.Logging.Output))
	c.Logging.Directory = expandHome(expandEnv(c.Logging.Directory))
}

// expandEnv replaces ${VAR} and ${VAR:default} references anywhere in s.
func expandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}

	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(s[:start])
		content := s[start+2 : end]
		if key, defaultVal, ok := strings.Cut(content, ":"); ok {
			if val := os.Getenv(key); val != "" {
				b.WriteString(val)
			} else {
				b.WriteString(defaultVal)
			}
		} else {
			b.WriteString(os.Getenv(content))
		}
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}

// expandHome расширяет ~ в пути
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// ResolveAPIKey returns the configured key, or the value of the variable
// named by api_key_env_var when the key is empty.
func (c *Config) ResolveAPIKey() string {
	if c.Scraper.APIKey != "" {
		return c.Scraper.APIKey
	}
	if c.Scraper.APIKeyEnvVar == "" {
		return ""
	}
	return os.Getenv(c.Scraper.APIKeyEnvVar)
}

// MaskedAPIKey is safe to log.
func (c *Config) MaskedAPIKey() string {
	return maskSecret(c.ResolveAPIKey())
}

// TickInterval returns the scheduler poll interval.
func (c *Config) TickInterval() time.Duration {
	return seconds(c.Scheduler.TickIntervalSeconds)
}

// RateLimitPause returns the minimum spacing between outbound calls.
func (c *Config) RateLimitPause() time.Duration {
	return seconds(c.Scraper.RateLimitPause)
}

// RetryBackoff returns the extra wait before the second structured attempt,
// doubled for each later one. Zero leaves retry spacing to the rate gate.
func (c *Config) RetryBackoff() time.Duration {
	return seconds(c.Scraper.RetryBackoff)
}

// HTTPTimeout returns the per-request timeout of both sources.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Scraper.HTTPTimeoutSeconds) * time.Second
}

// TaskTimeout returns the per-run timeout. Zero disables it.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Scheduler.TaskTimeoutSeconds) * time.Second
}

// Location loads the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// Weekday parses scheduler.first_weekday.
func (c *Config) Weekday() (time.Weekday, error) {
	day, err := trigger.ParseWeekday(c.Scheduler.FirstWeekday)
	if err != nil {
		return time.Sunday, fmt.Errorf("invalid scheduler.first_weekday: %w", err)
	}
	return day, nil
}

// BackendConfig returns the job store settings.
func (c *Config) BackendConfig() jobs.BackendConfig {
	return jobs.BackendConfig{
		Driver: c.Store.Driver,
		Path:   c.Store.Path,
		DSN:    c.Store.DSN,
	}
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Output:    c.Logging.Output,
		Directory: c.Logging.Directory,
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
