package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/trigger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.toml", ""))
	require.NoError(t, err)

	tests := []struct {
		field string
		want  any
		got   any
	}{
		{"scraper.api_key_env_var", "YOUTUBE_API_KEY", cfg.Scraper.APIKeyEnvVar},
		{"scraper.max_results", 50, cfg.Scraper.MaxResults},
		{"scraper.comment_count", 100, cfg.Scraper.CommentCount},
		{"scraper.max_retries", 2, cfg.Scraper.MaxRetries},
		{"scheduler.max_threads", 20, cfg.Scheduler.MaxThreads},
		{"scheduler.max_processes", 5, cfg.Scheduler.MaxProcesses},
		{"scheduler.timezone", "UTC", cfg.Scheduler.Timezone},
		{"store.driver", "sqlite", cfg.Store.Driver},
		{"store.path", "jobs.sqlite", cfg.Store.Path},
		{"output.directory", "data", cfg.Output.Directory},
		{"output.format", "json", cfg.Output.Format},
		{"logging.level", "info", cfg.Logging.Level},
		{"logging.format", "text", cfg.Logging.Format},
		{"logging.directory", "logs", cfg.Logging.Directory},
		{"metrics.listen", "", cfg.Metrics.Listen},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, time.Second, cfg.RateLimitPause())
	assert.Zero(t, cfg.RetryBackoff())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	assert.Zero(t, cfg.TaskTimeout())
	assert.Empty(t, cfg.Validate())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
[scraper]
api_key = "key-from-file"
max_results = 10
rate_limit_pause = 0
max_retries = 0
retry_backoff = 0.25

[scheduler]
tick_interval_seconds = 0.5
timezone = "Europe/Berlin"
first_weekday = "monday"

[store]
driver = "File"

[output]
format = "CSV"

[[jobs]]
id = "daily"
type = "channel"
channel_id = "https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw"

[[jobs]]
type = "search"
query = "go tips"
schedule_type = "cron"
[jobs.cron]
minute = "30"
hour = "6"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "key-from-file", cfg.ResolveAPIKey())
	assert.Equal(t, 10, cfg.Scraper.MaxResults)
	assert.Zero(t, cfg.RateLimitPause(), "explicit zero survives defaults")
	assert.Zero(t, cfg.Scraper.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryBackoff())
	assert.Equal(t, 500*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, jobs.JobsFilename, cfg.Store.Path)
	assert.Equal(t, "csv", cfg.Output.Format)
	require.Len(t, cfg.Jobs, 2)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
	day, err := cfg.Weekday()
	require.NoError(t, err)
	assert.Equal(t, time.Monday, day)

	assert.Empty(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
scraper:
  comment_count: 5
store:
  driver: memory
jobs:
  - id: clip
    type: video
    video_id: dQw4w9WgXcQ
    interval:
      hours: 6
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Scraper.CommentCount)
	assert.Equal(t, "memory", cfg.Store.Driver)
	require.Len(t, cfg.Jobs, 1)
	assert.Equal(t, 6, cfg.Jobs[0].Interval.Hours)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "config.toml", "[scraper\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.toml", "[scraper]\nunknown_key = 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown_key")

	_, err = Load(writeFile(t, "config.yml", "scraper:\n  nope: 1\n"))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("YTHARVEST_STORE_DRIVER", "postgres")
	t.Setenv("YTHARVEST_STORE_DSN", "postgres://localhost/ytharvest")
	t.Setenv("YTHARVEST_OUTPUT_DIRECTORY", "/srv/out")
	t.Setenv("YTHARVEST_SCHEDULER_MAX_THREADS", "3")
	t.Setenv("YTHARVEST_METRICS_LISTEN", ":9090")

	cfg, err := Load(writeFile(t, "config.toml", "[output]\ndirectory = \"from-file\"\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/ytharvest", cfg.Store.DSN)
	assert.Equal(t, "/srv/out", cfg.Output.Directory)
	assert.Equal(t, 3, cfg.Scheduler.MaxThreads)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
	assert.Empty(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("YTHARVEST_STORE_DRIVER", "FILE")
	t.Setenv("YTHARVEST_SCRAPER_MAX_RETRIES", "5")

	cfg, err := LoadDefaults()
	require.NoError(t, err)

	assert.Equal(t, jobs.DriverFile, cfg.Store.Driver)
	assert.Equal(t, jobs.JobsFilename, cfg.Store.Path)
	assert.Equal(t, 5, cfg.Scraper.MaxRetries)
	assert.Equal(t, "data", cfg.Output.Directory)
	assert.Empty(t, cfg.Validate())
}

func TestLoad_ExpandsVariables(t *testing.T) {
	t.Setenv("YT_TEST_KEY", "expanded-key")
	t.Setenv("YT_TEST_USER", "")

	cfg, err := Load(writeFile(t, "config.toml", `
[scraper]
api_key = "${YT_TEST_KEY}"
[store]
driver = "postgres"
dsn = "postgres://${YT_TEST_USER:harvester}@db/${YT_TEST_DB:jobs}"
`))
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Scraper.APIKey)
	assert.Equal(t, "postgres://harvester@db/jobs", cfg.Store.DSN)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("YT_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${YT_A}", "alpha"},
		{"${YT_MISSING:fallback}", "fallback"},
		{"${YT_A:fallback}", "alpha"},
		{"x-${YT_A}-${YT_MISSING}-y", "x-alpha--y"},
		{"${unterminated", "${unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnv(tt.in))
		})
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), expandHome("~/data"))
	assert.Equal(t, "/abs/data", expandHome("/abs/data"))
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("YT_TEST_API_KEY", "AIzaSyExampleKey123")

	cfg := Default()
	cfg.Scraper.APIKeyEnvVar = "YT_TEST_API_KEY"
	assert.Equal(t, "AIzaSyExampleKey123", cfg.ResolveAPIKey())
	assert.Equal(t, "AIza***********y123", cfg.MaskedAPIKey())

	cfg.Scraper.APIKey = "direct"
	assert.Equal(t, "direct", cfg.ResolveAPIKey())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "***", maskSecret("short"))
	assert.Equal(t, "abcd****wxyz", maskSecret("abcd1234wxyz"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name: "invalid sections",
			mutate: func(c *Config) {
				c.Scraper.MaxResults = 0
				c.Scheduler.TickIntervalSeconds = 0
				c.Output.Format = "xml"
				c.Logging.Level = "verbose"
			},
			fields: []string{"scraper.max_results", "scheduler.tick_interval_seconds", "output.format", "logging.level"},
		},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.Store.Driver = "postgres" },
			fields: []string{"store.dsn"},
		},
		{
			name:   "unknown timezone",
			mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
			fields: []string{"scheduler.timezone"},
		},
		{
			name:   "unknown weekday",
			mutate: func(c *Config) { c.Scheduler.FirstWeekday = "someday" },
			fields: []string{"scheduler.first_weekday"},
		},
		{
			name:   "bad metrics listen",
			mutate: func(c *Config) { c.Metrics.Listen = "9090" },
			fields: []string{"metrics.listen"},
		},
		{
			name: "job missing target",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{{Type: "playlist"}}
			},
			fields: []string{"jobs[0].playlist_id"},
		},
		{
			name: "job bad type",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{{Type: "podcast"}}
			},
			fields: []string{"jobs[0].type"},
		},
		{
			name: "job bad cron",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{{Type: "video", VideoID: "dQw4w9WgXcQ", ScheduleType: "cron", Cron: CronConfig{Minute: "61"}}}
			},
			fields: []string{"jobs[0]"},
		},
		{
			name: "job unextractable target",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{{Type: "channel", ChannelID: "https://example.com/nothing"}}
			},
			fields: []string{"jobs[0]"},
		},
		{
			name: "duplicate job ids",
			mutate: func(c *Config) {
				c.Jobs = []JobConfig{
					{ID: "same", Type: "search", Query: "a"},
					{ID: "same", Type: "search", Query: "b"},
				}
			},
			fields: []string{"jobs[1].id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			applyDefaults(cfg)
			tt.mutate(cfg)

			errs := cfg.Validate()
			var got []string
			for _, err := range errs {
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), "unexpected error type: %v", err)
				got = append(got, verr.Field)
			}
			assert.ElementsMatch(t, tt.fields, got, "errors: %v", errs)
		})
	}
}

func TestValidate_CronAgainstCalculator(t *testing.T) {
	cfg := Default()
	applyDefaults(cfg)
	cfg.Jobs = []JobConfig{{Type: "video", VideoID: "dQw4w9WgXcQ", Cron: CronConfig{Minute: "61"}}}

	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.True(t, strings.Contains(errs[0].Error(), "jobs[0]"))
	assert.ErrorIs(t, errs[0], trigger.ErrInvalidTrigger)
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "")

	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Validate())

	specs, err := cfg.JobSpecs(time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "daily_channel", specs[0].ID)
	assert.Equal(t, "interval[24h0m0s]", specs[0].Trigger.String())
	assert.Equal(t, jobs.KindSearch, specs[1].Kind)
	assert.False(t, specs[1].IncludeComments)
}
