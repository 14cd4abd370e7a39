package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/aatumaykin/ytharvest/internal/logger"
	"github.com/aatumaykin/ytharvest/internal/retry"
)

// DefaultMaxRetries is the number of extra structured attempts before falling back.
const DefaultMaxRetries = 2

// Fetcher prefers the structured source and degrades to the fallback only
// after the structured source stayed unavailable for every attempt.
type Fetcher struct {
	structured Source
	fallback   Source
	gate       *Gate
	maxRetries int
	backoff    time.Duration
	clock      Clock
	logger     *logger.Logger
	onResult   func(target Target, p Provenance, err error, attempts int)
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithMaxRetries sets the number of structured retries after the first attempt.
func WithMaxRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

// WithBackoff waits d, doubling per attempt, between structured attempts.
// The gate already spaces calls, so the default is no extra wait.
func WithBackoff(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.backoff = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFetcherClock sets the clock used for scraped_at stamps.
func WithFetcherClock(c Clock) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithResultObserver is called once per Execute.
func WithResultObserver(fn func(target Target, p Provenance, err error, attempts int)) FetcherOption {
	return func(f *Fetcher) { f.onResult = fn }
}

// NewFetcher wires the two sources behind one gate. fallback may be nil.
func NewFetcher(structured, fallback Source, gate *Gate, opts ...FetcherOption) *Fetcher {
	if gate == nil {
		gate = NewGate(0)
	}
	f := &Fetcher{
		structured: structured,
		fallback:   fallback,
		gate:       gate,
		maxRetries: DefaultMaxRetries,
		clock:      SystemClock{},
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Execute runs req. On failure the returned Result still carries Attempts.
func (f *Fetcher) Execute(ctx context.Context, req Request) (Result, error) {
	res, err := f.execute(ctx, req)
	if f.onResult != nil {
		f.onResult(req.Target, res.Provenance, err, res.Attempts)
	}
	return res, err
}

func (f *Fetcher) execute(ctx context.Context, req Request) (Result, error) {
	log := f.logger.With(
		logger.Field{Key: "target", Value: req.Target},
		logger.Field{Key: "id", Value: req.ID})

	var records []Record
	attempts, structErr := retry.Do(ctx, retry.Config{
		MaxAttempts:    f.maxRetries + 1,
		InitialBackoff: f.backoff,
		Retryable:      isUnavailable,
		Sleep:          f.clock.Sleep,
	}, func(ctx context.Context, attempt int) error {
		if err := f.gate.Acquire(ctx); err != nil {
			return err
		}
		recs, err := f.structured.Fetch(ctx, req)
		if err != nil {
			log.Debug("structured fetch failed",
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "kind", Value: Kind(err)},
				logger.Field{Key: "error", Value: err.Error()})
			return err
		}
		records = recs
		return nil
	})

	if structErr == nil {
		return f.result(records, ProvenanceStructured, attempts), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Attempts: attempts}, ctxErr
	}
	if errors.Is(structErr, ErrNotFound) {
		return Result{Attempts: attempts}, structErr
	}

	if f.fallback == nil {
		return Result{Attempts: attempts}, &ExhaustedError{
			Structured: structErr,
			Fallback:   errors.New("no fallback source configured"),
			Attempts:   attempts,
		}
	}

	log.Warn("structured source unavailable, using fallback",
		logger.Field{Key: "attempts", Value: attempts},
		logger.Field{Key: "fallback", Value: f.fallback.Name()})

	attempts++
	if err := f.gate.Acquire(ctx); err != nil {
		return Result{Attempts: attempts}, err
	}
	records, fbErr := f.fallback.Fetch(ctx, req)
	if fbErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Attempts: attempts}, ctxErr
		}
		return Result{Attempts: attempts}, &ExhaustedError{
			Structured: structErr,
			Fallback:   fbErr,
			Attempts:   attempts,
		}
	}
	return f.result(records, ProvenanceFallback, attempts), nil
}

func (f *Fetcher) result(records []Record, p Provenance, attempts int) Result {
	Stamp(records, p, f.clock.Now())
	return Result{
		Records:    records,
		Provenance: p,
		Count:      len(records),
		Attempts:   attempts,
	}
}

// isUnavailable treats everything except NotFound as transient, so
// unclassified transport errors still reach the fallback. Cancellation of
// ctx itself is checked by retry.Do before each attempt.
func isUnavailable(err error) bool {
	return !errors.Is(err, ErrNotFound)
}
