package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the target does not exist. It never triggers fallback.
	ErrNotFound = errors.New("not found")
	// ErrSourceUnavailable is a transient failure: quota, network or a malformed response.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrAllSourcesExhausted means both the structured and the fallback path failed.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
)

// SourceError is returned by sources. It matches both its class
// (ErrNotFound or ErrSourceUnavailable) and the underlying cause.
type SourceError struct {
	Source string
	Class  error
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Source, e.Class)
	}
	return fmt.Sprintf("%s: %v: %v", e.Source, e.Class, e.Err)
}

func (e *SourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Class}
	}
	return []error{e.Class, e.Err}
}

// NotFound wraps err as a permanent target-absence error.
func NotFound(source string, err error) error {
	return &SourceError{Source: source, Class: ErrNotFound, Err: err}
}

// Unavailable wraps err as a transient source failure.
func Unavailable(source string, err error) error {
	return &SourceError{Source: source, Class: ErrSourceUnavailable, Err: err}
}

// ExhaustedError carries both underlying failures when every path failed.
type ExhaustedError struct {
	Structured error
	Fallback   error
	Attempts   int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: structured: %v; fallback: %v",
		ErrAllSourcesExhausted, e.Attempts, e.Structured, e.Fallback)
}

func (e *ExhaustedError) Unwrap() error { return ErrAllSourcesExhausted }

// Error kinds reported by Kind.
const (
	KindNotFound          = "not_found"
	KindSourceUnavailable = "source_unavailable"
	KindExhausted         = "all_sources_exhausted"
	KindCanceled          = "canceled"
	KindUnknown           = "unknown"
)

// Kind names the taxonomy class of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAllSourcesExhausted):
		return KindExhausted
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrSourceUnavailable):
		return KindSourceUnavailable
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// Summary shortens err to its first line for outcome records.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	const max = 500
	if len(msg) > max {
		msg = msg[:max] + "..."
	}
	return msg
}
