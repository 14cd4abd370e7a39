package retrieval

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Clock abstracts time so the gate can be fast-forwarded in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Gate enforces a minimum spacing between outbound calls across all callers.
// Waiters are served in the order they called Acquire: each call reserves
// the next free slot before it blocks.
type Gate struct {
	limiter *rate.Limiter
	pause   time.Duration
	clock   Clock
	onWait  func(time.Duration)
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock replaces SystemClock.
func WithClock(c Clock) GateOption {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithWaitObserver is called with the time each Acquire spent blocked.
func WithWaitObserver(fn func(time.Duration)) GateOption {
	return func(g *Gate) { g.onWait = fn }
}

// NewGate returns a gate spacing calls by pause. A pause of zero or less
// never blocks.
func NewGate(pause time.Duration, opts ...GateOption) *Gate {
	g := &Gate{pause: pause, clock: SystemClock{}}
	for _, opt := range opts {
		opt(g)
	}
	if pause > 0 {
		g.limiter = rate.NewLimiter(rate.Every(pause), 1)
	}
	return g
}

// Pause returns the configured spacing.
func (g *Gate) Pause() time.Duration {
	return g.pause
}

// Acquire blocks until the caller may issue one call.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.limiter == nil {
		return ctx.Err()
	}

	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	if !r.OK() {
		return ErrSourceUnavailable
	}

	delay := r.DelayFrom(now)
	if err := g.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(g.clock.Now())
		return err
	}
	if g.onWait != nil {
		g.onWait(delay)
	}
	return nil
}
