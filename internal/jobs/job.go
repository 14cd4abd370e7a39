// Package jobs holds scheduled job descriptions, their runtime state and the
// durable store that owns both.
package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/ytharvest/internal/trigger"
)

var (
	// ErrJobNotFound is returned by lifecycle operations on an unknown id.
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateJobID is returned when submitting an id that is already active or paused.
	ErrDuplicateJobID = errors.New("duplicate job id")
	// ErrInvalidJob is returned for specs that fail validation.
	ErrInvalidJob = errors.New("invalid job")
)

// Kind is the kind of target a job retrieves.
type Kind string

const (
	KindChannel  Kind = "channel"
	KindVideo    Kind = "video"
	KindPlaylist Kind = "playlist"
	KindSearch   Kind = "search"
)

// Kinds lists every valid target kind.
var Kinds = []Kind{KindChannel, KindVideo, KindPlaylist, KindSearch}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, s)
}

// Status is the lifecycle status of a job.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusRemoved Status = "removed"
)

// Spec describes one scheduled unit of work. It is immutable once submitted;
// changing the trigger means removing the job and submitting it again.
type Spec struct {
	ID              string       `json:"id"`
	Kind            Kind         `json:"type"`
	Target          string       `json:"target"` // id, or the query for search jobs
	IncludeComments bool         `json:"include_comments"`
	MaxResults      int          `json:"max_results,omitempty"` // 0 uses the scraper default
	Trigger         trigger.Spec `json:"trigger"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Validate checks the target and the trigger shape.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	if _, err := ParseKind(string(s.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(s.Target) == "" {
		if s.Kind == KindSearch {
			return fmt.Errorf("%w: search job %s has no query", ErrInvalidJob, s.ID)
		}
		return fmt.Errorf("%w: %s job %s has no target id", ErrInvalidJob, s.Kind, s.ID)
	}
	if s.Kind != KindSearch && strings.ContainsAny(s.Target, " \t\n") {
		return fmt.Errorf("%w: %s id %q contains whitespace", ErrInvalidJob, s.Kind, s.Target)
	}
	if s.MaxResults < 0 {
		return fmt.Errorf("%w: negative max_results", ErrInvalidJob)
	}
	return s.Trigger.Validate()
}

// DefaultID builds an id in the form <type>_<target>_<YYYYmmddHHMMSS>.
func DefaultID(kind Kind, target string, at time.Time) string {
	t := strings.ReplaceAll(strings.TrimSpace(target), " ", "_")
	return fmt.Sprintf("%s_%s_%s", kind, t, at.UTC().Format("20060102150405"))
}

// Outcome summarizes one run.
type Outcome struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Provenance string    `json:"provenance,omitempty"`
	Records    int       `json:"records"`
	Comments   int       `json:"comments,omitempty"` // comment records written by the fan-out
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
}

// State is the mutable runtime state of a job.
type State struct {
	Status      Status     `json:"status"`
	Generation  string     `json:"generation,omitempty"` // new on every submit
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastOutcome *Outcome   `json:"last_outcome,omitempty"`
}

// Entry pairs a Spec with its State. It is the unit of persistence.
type Entry struct {
	Spec  Spec  `json:"spec"`
	State State `json:"state"`
}

func (e Entry) clone() Entry {
	out := e
	if e.Spec.Trigger.Cron != nil {
		c := *e.Spec.Trigger.Cron
		out.Spec.Trigger.Cron = &c
	}
	out.State.LastRun = cloneTime(e.State.LastRun)
	out.State.NextRun = cloneTime(e.State.NextRun)
	if e.State.LastOutcome != nil {
		o := *e.State.LastOutcome
		out.State.LastOutcome = &o
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
