package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/aatumaykin/ytharvest/internal/config"
	"github.com/aatumaykin/ytharvest/internal/jobs"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/retrieval"
)

const watchPage = `<!DOCTYPE html>
<html><head>
<meta property="og:title" content="Never Gonna Give You Up">
<meta name="keywords" content="rick, 80s">
</head><body></body></html>`

func boolPtr(b bool) *bool { return &b }

// createTestConfig returns a config with a file store in a temp dir and no
// API key, so every fetch goes to the fallback.
func createTestConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Scraper.APIKey = ""
	cfg.Scraper.APIKeyEnvVar = "YTHARVEST_TEST_UNSET_API_KEY"
	cfg.Scraper.RateLimitPause = 0
	cfg.Scraper.HTTPTimeoutSeconds = 5
	cfg.Scheduler.MaxThreads = 2
	cfg.Scheduler.TickIntervalSeconds = 0.01
	cfg.Store.Driver = jobs.DriverFile
	cfg.Store.Path = filepath.Join(dir, "state", jobs.JobsFilename)
	cfg.Output.Directory = filepath.Join(dir, "data")
	return cfg
}

func fallbackServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/watch" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(watchPage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_InitializeAndShutdown(t *testing.T) {
	a := New(createTestConfig(t), logger.Discard())

	require.NoError(t, a.Initialize(context.Background()))
	assert.NotNil(t, a.Scheduler())
	assert.NotNil(t, a.Registry())
	assert.ErrorIs(t, a.Initialize(context.Background()), ErrAlreadyInitialized)

	assert.NoError(t, a.Shutdown())
	assert.NoError(t, a.Shutdown(), "second shutdown is a no-op")
}

func TestApp_InitializeRejectsBadStore(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Store.Driver = "cassandra"

	a := New(cfg, nil)
	assert.Error(t, a.Initialize(context.Background()))
	assert.Nil(t, a.Scheduler())
}

func TestApp_NotInitialized(t *testing.T) {
	a := New(createTestConfig(t), nil)

	_, err := a.SeedJobs(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = a.RunJob(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestApp_SeedJobsKeepsStoredState(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Jobs = []config.JobConfig{
		{ID: "named", Type: "search", Query: "go tips"},
		{Type: "video", VideoID: "dQw4w9WgXcQ", Interval: config.IntervalConfig{Hours: 6}},
	}
	ctx := context.Background()

	first := New(cfg, nil)
	require.NoError(t, first.Initialize(ctx))
	added, err := first.SeedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	require.NoError(t, first.Scheduler().Pause(ctx, "named"))
	require.NoError(t, first.Shutdown())

	second := New(cfg, nil)
	require.NoError(t, second.Initialize(ctx))
	defer second.Shutdown()

	added, err = second.SeedJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	entries := second.Scheduler().List()
	require.Len(t, entries, 2)
	for _, e := range entries {
		if e.Spec.ID == "named" {
			assert.Equal(t, jobs.StatusPaused, e.State.Status)
		}
	}
}

func TestApp_RunJobUsesFallbackWithoutAPIKey(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Jobs = []config.JobConfig{
		{ID: "clip", Type: "video", VideoID: "dQw4w9WgXcQ", IncludeComments: boolPtr(false)},
	}
	ctx := context.Background()

	a := New(cfg, nil, WithFallbackBaseURL(fallbackServer(t).URL))
	require.NoError(t, a.Initialize(ctx))
	defer a.Shutdown()
	_, err := a.SeedJobs(ctx)
	require.NoError(t, err)

	outcome, err := a.RunJob(ctx, "clip")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, string(retrieval.ProvenanceFallback), outcome.Provenance)
	assert.Equal(t, 1, outcome.Records)
	assert.Equal(t, 2, outcome.Attempts, "one structured attempt without retries, then fallback")

	files, err := os.ReadDir(filepath.Join(cfg.Output.Directory, "videos"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	entry := a.Scheduler().List()[0]
	require.NotNil(t, entry.State.LastOutcome)
	assert.True(t, entry.State.LastOutcome.Success)
}

func TestApp_RunJobWithAPIEndpoint(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"Never Gonna"}}]}`))
	}))
	t.Cleanup(api.Close)

	cfg := createTestConfig(t)
	cfg.Scraper.APIKey = "test-api-key"
	cfg.Jobs = []config.JobConfig{
		{ID: "clip", Type: "video", VideoID: "dQw4w9WgXcQ", IncludeComments: boolPtr(false)},
	}
	ctx := context.Background()

	a := New(cfg, nil, WithClientOptions(option.WithEndpoint(api.URL+"/")))
	require.NoError(t, a.Initialize(ctx))
	defer a.Shutdown()
	_, err := a.SeedJobs(ctx)
	require.NoError(t, err)

	outcome, err := a.RunJob(ctx, "clip")
	require.NoError(t, err)
	assert.Equal(t, string(retrieval.ProvenanceStructured), outcome.Provenance)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Jobs = []config.JobConfig{
		{ID: "clip", Type: "video", VideoID: "dQw4w9WgXcQ", IncludeComments: boolPtr(false)},
	}

	a := New(cfg, nil, WithFallbackBaseURL(fallbackServer(t).URL))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		s := a.Scheduler()
		return s != nil && len(s.List()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
