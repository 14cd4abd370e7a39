package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/ytharvest/internal/logger"
)

// Backend persists entries. Implementations need not be safe for concurrent
// use; Store serializes every call.
type Backend interface {
	Load(ctx context.Context) ([]Entry, error)
	Put(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// StoreError reports a failure of the durable backend. Due-job computation
// cannot be trusted after one, so callers treat it as fatal.
type StoreError struct {
	Op  string
	ID  string
	Err error
}

func (e *StoreError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("job store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("job store %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store is the in-memory view of all jobs, written through to a Backend.
// Every mutation holds one store-wide lock, so operations on the same id are
// totally ordered, and the in-memory state only changes after the backend
// accepted the write.
type Store struct {
	mu      sync.Mutex
	backend Backend
	entries map[string]Entry
	logger  *logger.Logger
}

// NewStore loads every persisted entry from backend.
func NewStore(ctx context.Context, backend Backend, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, &StoreError{Op: "load", Err: err}
	}

	s := &Store{
		backend: backend,
		entries: make(map[string]Entry, len(loaded)),
		logger:  log,
	}
	for _, e := range loaded {
		if e.State.Status == StatusRemoved {
			continue
		}
		s.entries[e.Spec.ID] = e
	}

	log.Debug("job store loaded", logger.Field{Key: "jobs", Value: len(s.entries)})
	return s, nil
}

// Submit registers spec as active with the given first fire time.
func (s *Store) Submit(ctx context.Context, spec Spec, nextRun time.Time) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[spec.ID]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateJobID, spec.ID)
	}

	entry := Entry{
		Spec: spec,
		State: State{
			Status:     StatusActive,
			Generation: uuid.NewString(),
			NextRun:    &nextRun,
		},
	}
	if err := s.put(ctx, entry); err != nil {
		return "", err
	}

	s.logger.Info("job submitted",
		logger.Field{Key: "job_id", Value: spec.ID},
		logger.Field{Key: "type", Value: spec.Kind},
		logger.Field{Key: "trigger", Value: spec.Trigger.String()},
		logger.Field{Key: "next_run", Value: nextRun})
	return spec.ID, nil
}

// Pause stops a job from becoming due. Its next-run is kept so Resume can
// restore the original cadence.
func (s *Store) Pause(ctx context.Context, id string) error {
	return s.update(ctx, "pause", id, func(e *Entry) {
		e.State.Status = StatusPaused
	})
}

// Resume makes a paused job eligible again. A stored next-run is kept even
// if it is stale; fallback is used only when none is stored.
func (s *Store) Resume(ctx context.Context, id string, fallback time.Time) error {
	return s.update(ctx, "resume", id, func(e *Entry) {
		e.State.Status = StatusActive
		if e.State.NextRun == nil {
			e.State.NextRun = &fallback
		}
	})
}

// Remove deletes a job and its state.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err := s.backend.Delete(ctx, id); err != nil {
		return &StoreError{Op: "delete", ID: id, Err: err}
	}
	delete(s.entries, id)

	s.logger.Info("job removed", logger.Field{Key: "job_id", Value: id})
	return nil
}

// Get returns a copy of one entry.
func (s *Store) Get(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return e.clone(), nil
}

// List returns copies of all entries ordered by creation time, then id.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Spec, out[j].Spec
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Due returns ids of active jobs whose next-run is at or before asOf,
// earliest first.
func (s *Store) Due(asOf time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	type due struct {
		id string
		at time.Time
	}
	var found []due
	for id, e := range s.entries {
		if e.State.Status != StatusActive || e.State.NextRun == nil {
			continue
		}
		if !e.State.NextRun.After(asOf) {
			found = append(found, due{id: id, at: *e.State.NextRun})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].at.Equal(found[j].at) {
			return found[i].at.Before(found[j].at)
		}
		return found[i].id < found[j].id
	})

	ids := make([]string, len(found))
	for i, d := range found {
		ids[i] = d.id
	}
	return ids
}

// RecordOutcome stores the result of a run and advances next-run. A nil
// nextRun leaves the stored next-run untouched. generation is the
// State.Generation seen when the run was dispatched; recording for an id
// that no longer exists, or was removed and submitted again since, is a
// no-op.
func (s *Store) RecordOutcome(ctx context.Context, id, generation string, outcome Outcome, nextRun *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		s.logger.Debug("outcome for unknown job dropped", logger.Field{Key: "job_id", Value: id})
		return nil
	}
	if e.State.Generation != generation {
		s.logger.Debug("outcome for replaced job dropped", logger.Field{Key: "job_id", Value: id})
		return nil
	}

	e = e.clone()
	ranAt := outcome.StartedAt
	e.State.LastRun = &ranAt
	e.State.LastOutcome = &outcome
	if nextRun != nil {
		next := *nextRun
		e.State.NextRun = &next
	}
	return s.put(ctx, e)
}

// Close closes the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}

func (s *Store) update(ctx context.Context, op, id string, mutate func(*Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	e = e.clone()
	mutate(&e)
	if err := s.put(ctx, e); err != nil {
		return err
	}

	s.logger.Info("job "+op+"d", logger.Field{Key: "job_id", Value: id})
	return nil
}

// put must be called with mu held.
func (s *Store) put(ctx context.Context, e Entry) error {
	if err := s.backend.Put(ctx, e); err != nil {
		return &StoreError{Op: "put", ID: e.Spec.ID, Err: err}
	}
	s.entries[e.Spec.ID] = e
	return nil
}
