package builders

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/option"

	"github.com/aatumaykin/ytharvest/internal/config"
	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/metrics"
	"github.com/aatumaykin/ytharvest/internal/retrieval"
	"github.com/aatumaykin/ytharvest/internal/youtube"
)

var errNoAPIKey = errors.New("no youtube api key configured")

type RetrievalBuilder struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	clientOpts  []option.ClientOption
	fallbackURL string
}

func NewRetrievalBuilder(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *RetrievalBuilder {
	return &RetrievalBuilder{
		config:  cfg,
		logger:  log,
		metrics: m,
	}
}

// WithClientOptions adds options to the YouTube API client, e.g. a custom endpoint.
func (b *RetrievalBuilder) WithClientOptions(opts ...option.ClientOption) *RetrievalBuilder {
	b.clientOpts = append(b.clientOpts, opts...)
	return b
}

// WithFallbackBaseURL points the scraper at another site root.
func (b *RetrievalBuilder) WithFallbackBaseURL(url string) *RetrievalBuilder {
	b.fallbackURL = url
	return b
}

// Build wires both sources behind one rate gate. Without an API key the
// structured source always reports itself unavailable, so every request goes
// straight to the fallback.
func (b *RetrievalBuilder) Build(ctx context.Context) (*retrieval.Fetcher, error) {
	m := b.metrics
	scraper := b.config.Scraper

	gate := retrieval.NewGate(b.config.RateLimitPause(), retrieval.WithWaitObserver(m.ObserveGateWait))

	maxRetries := scraper.MaxRetries
	var structured retrieval.Source
	if key := b.config.ResolveAPIKey(); key != "" {
		src, err := youtube.NewStructuredSource(ctx, key, b.clientOpts, youtube.WithQuotaObserver(m.AddQuota))
		if err != nil {
			return nil, fmt.Errorf("failed to create youtube api client: %w", err)
		}
		structured = src
		b.logger.Info("youtube api enabled", logger.Field{Key: "api_key", Value: b.config.MaskedAPIKey()})
	} else {
		structured = retrieval.SourceFunc{
			Label: youtube.StructuredSourceName,
			Fn: func(context.Context, retrieval.Request) ([]retrieval.Record, error) {
				return nil, retrieval.Unavailable(youtube.StructuredSourceName, errNoAPIKey)
			},
		}
		maxRetries = 0
		b.logger.Warn("no youtube api key, using web scraping only",
			logger.Field{Key: "env_var", Value: scraper.APIKeyEnvVar})
	}

	fallback := youtube.NewFallbackSource(youtube.FallbackConfig{
		BaseURL:    b.fallbackURL,
		UserAgent:  scraper.UserAgent,
		Timeout:    b.config.HTTPTimeout(),
		ParseSlots: b.config.Scheduler.MaxProcesses,
	})

	return retrieval.NewFetcher(structured, fallback, gate,
		retrieval.WithMaxRetries(maxRetries),
		retrieval.WithBackoff(b.config.RetryBackoff()),
		retrieval.WithLogger(b.logger),
		retrieval.WithResultObserver(func(target retrieval.Target, p retrieval.Provenance, err error, attempts int) {
			m.RecordFetch(string(target), string(p), retrieval.Kind(err), attempts)
		}),
	), nil
}
