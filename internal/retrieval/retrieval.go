// Package retrieval runs one logical fetch against the structured API and,
// when that is unavailable, against the fallback scraper.
package retrieval

import (
	"context"
	"time"
)

// Target is what a request fetches.
type Target string

const (
	TargetChannel  Target = "channel"  // recent videos of a channel
	TargetVideo    Target = "video"    // one video's metadata
	TargetPlaylist Target = "playlist" // videos of a playlist
	TargetSearch   Target = "search"   // search results for a query
	TargetComments Target = "comments" // top-level comments of a video
)

// Provenance tags which source produced a result.
type Provenance string

const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceFallback   Provenance = "fallback"
)

// SourceLabel is the value records carry in their "source" field.
func (p Provenance) SourceLabel() string {
	if p == ProvenanceFallback {
		return "web_scraping"
	}
	return "api"
}

// Request is built per dispatch and discarded after the call returns.
type Request struct {
	Target          Target
	ID              string // id, or the query for TargetSearch
	IncludeComments bool
	MaxResults      int
}

// Record is one platform record. Field names are the platform's own.
type Record map[string]any

// Common record keys set by every source.
const (
	FieldSource    = "source"
	FieldScrapedAt = "scraped_at"
	FieldVideoID   = "video_id"
)

// Result is the outcome of a successful Execute.
type Result struct {
	Records    []Record
	Provenance Provenance
	Count      int
	Attempts   int
}

// Source performs one fetch. StructuredSource and FallbackSource in the
// youtube package are the two implementations.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	Label string
	Fn    func(ctx context.Context, req Request) ([]Record, error)
}

func (f SourceFunc) Name() string { return f.Label }

func (f SourceFunc) Fetch(ctx context.Context, req Request) ([]Record, error) {
	return f.Fn(ctx, req)
}

// Stamp sets the provenance fields on every record that does not carry them yet.
func Stamp(records []Record, p Provenance, at time.Time) {
	label := p.SourceLabel()
	ts := at.UTC().Format(time.RFC3339)
	for _, r := range records {
		if _, ok := r[FieldSource]; !ok {
			r[FieldSource] = label
		}
		if _, ok := r[FieldScrapedAt]; !ok {
			r[FieldScrapedAt] = ts
		}
	}
}
