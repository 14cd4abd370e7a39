package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("temporary failure")

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), Config{MaxAttempts: 3}, func(context.Context, int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1/1", attempts, calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	attempts, err := Do(context.Background(), Config{MaxAttempts: 3}, func(_ context.Context, attempt int) error {
		if attempt < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDo_ReturnsLastErrorUnwrapped(t *testing.T) {
	attempts, err := Do(context.Background(), Config{MaxAttempts: 3}, func(context.Context, int) error {
		return errTransient
	})
	if err != errTransient {
		t.Fatalf("err = %v, want %v", err, errTransient)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	cfg := Config{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}

	attempts, err := Do(context.Background(), cfg, func(context.Context, int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want permanent", err)
	}
	if attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1/1", attempts, calls)
	}
}

func TestDo_BackoffUsesSleep(t *testing.T) {
	var slept []time.Duration
	cfg := Config{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     250 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	_, _ = Do(context.Background(), cfg, func(context.Context, int) error { return errTransient })

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDo_NoBackoffByDefault(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		Sleep: func(context.Context, time.Duration) error {
			t.Fatal("sleep must not be called without InitialBackoff")
			return nil
		},
	}
	_, _ = Do(context.Background(), cfg, func(context.Context, int) error { return errTransient })
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := Do(ctx, Config{}, func(context.Context, int) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 0 || calls != 0 {
		t.Errorf("attempts = %d, calls = %d, want 0/0", attempts, calls)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt, time.Second, 10*time.Second); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
