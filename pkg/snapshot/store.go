// Package snapshot holds the workspace facts that are refreshed by explicit
// re-fetch rather than by subscription: the workspace listing and the
// server's selected file.
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/sirupsen/logrus"
)

// Kind identifies a stored fact.
type Kind string

const (
	KindSelectedFile Kind = "selected file"
	KindWorkspace    Kind = "workspace"
)

// Fetcher is the query side of the backend used by the store.
type Fetcher interface {
	FetchSelectedFile(ctx context.Context) (string, error)
	FetchWorkspace(ctx context.Context) (models.WorkspaceListing, error)
}

// Entry is the stored state of one fact.
type Entry[T any] struct {
	Value T
	// Loaded is false until the first successful fetch.
	Loaded bool
	// Pending is true while a fetch is in flight.
	Pending   bool
	Err       error
	FetchedAt time.Time
}

type slot[T any] struct {
	entry    Entry[T]
	started  uint64
	applied  uint64
	inflight int
}

// Store is the single writer of the workspace listing and fetched selected
// file. Reads never block on fetches.
type Store struct {
	fetcher Fetcher
	logger  *logrus.Entry
	notify  func()

	mu        sync.RWMutex
	selected  slot[string]
	workspace slot[models.WorkspaceListing]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Store) { s.logger = l }
}

// WithNotify registers a callback run after every change.
func WithNotify(fn func()) Option {
	return func(s *Store) { s.notify = fn }
}

// New creates an empty store.
func New(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher: fetcher,
		logger:  logging.NewLogger("snapshot"),
		notify:  func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refetch issues a fresh fetch of kind and replaces the stored value on
// success. On failure the previous value is kept and the error returned.
func (s *Store) Refetch(ctx context.Context, kind Kind) error {
	switch kind {
	case KindSelectedFile:
		_, err := s.RefetchSelectedFile(ctx)
		return err
	case KindWorkspace:
		_, err := s.RefetchWorkspace(ctx)
		return err
	}
	return errors.InvalidInput(fmt.Sprintf("unknown snapshot kind %q", kind))
}

// RefetchSelectedFile re-fetches the selected file and returns the stored
// value afterwards.
func (s *Store) RefetchSelectedFile(ctx context.Context) (string, error) {
	return refetch(ctx, s, &s.selected, KindSelectedFile, s.fetcher.FetchSelectedFile)
}

// RefetchWorkspace re-fetches the workspace listing.
func (s *Store) RefetchWorkspace(ctx context.Context) (models.WorkspaceListing, error) {
	return refetch(ctx, s, &s.workspace, KindWorkspace, s.fetcher.FetchWorkspace)
}

// SelectedFile returns the last fetched selected file.
func (s *Store) SelectedFile() Entry[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected.entry
}

// Workspace returns the last fetched workspace listing.
func (s *Store) Workspace() Entry[models.WorkspaceListing] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workspace.entry
}

// Loaded reports whether kind has been fetched successfully at least once.
func (s *Store) Loaded(kind Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case KindSelectedFile:
		return s.selected.entry.Loaded
	case KindWorkspace:
		return s.workspace.entry.Loaded
	}
	return false
}

// refetch runs one fetch for sl. Only the most recently started fetch may
// replace the value, so a slow older fetch never overwrites a newer one.
func refetch[T any](ctx context.Context, s *Store, sl *slot[T], kind Kind, fetch func(context.Context) (T, error)) (T, error) {
	s.mu.Lock()
	sl.started++
	gen := sl.started
	sl.inflight++
	sl.entry.Pending = true
	s.mu.Unlock()
	s.notify()

	value, err := fetch(ctx)

	s.mu.Lock()
	sl.inflight--
	sl.entry.Pending = sl.inflight > 0
	if err != nil {
		ferr := errors.FetchFailed(string(kind), err)
		if gen == sl.started {
			sl.entry.Err = ferr
		}
		current := sl.entry.Value
		s.mu.Unlock()

		s.logger.WithError(err).WithField("kind", kind).Warn("Refetch failed, keeping previous value")
		s.notify()
		return current, ferr
	}

	if gen > sl.applied {
		sl.applied = gen
		sl.entry.Value = value
		sl.entry.Loaded = true
		sl.entry.Err = nil
		sl.entry.FetchedAt = time.Now()
	} else {
		s.logger.WithField("kind", kind).Debug("Dropping superseded fetch result")
	}
	current := sl.entry.Value
	s.mu.Unlock()

	s.notify()
	return current, nil
}
