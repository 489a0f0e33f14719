package store

import (
	"fmt"
	"sync"

	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/pkg/models"
)

// Store is the in-memory state store for the daemon.
// It is thread-safe and supports per-topic pub/sub for real-time updates.
type Store struct {
	mu          sync.RWMutex
	state       State
	subscribers map[Topic]map[chan Event]struct{}
}

// New creates a new Store instance.
func New() *Store {
	return &Store{
		state: State{
			Summary: models.TestSummary{Files: make(map[string]models.FileSummary)},
			Runner:  models.RunnerStatus{Runners: make(map[string]models.RunnerEntry)},
		},
		subscribers: make(map[Topic]map[chan Event]struct{}),
	}
}

// Get returns a deep copy of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		SelectedFile: s.state.SelectedFile,
		Workspace:    cloneListing(s.state.Workspace),
		Summary:      s.state.Summary.Clone(),
		Runner:       s.state.Runner.Clone(),
	}
}

// SelectedFile returns the selected file, or "" when none is selected.
func (s *Store) SelectedFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SelectedFile
}

// Workspace returns the current workspace listing.
func (s *Store) Workspace() models.WorkspaceListing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneListing(s.state.Workspace)
}

// Summary returns the test summary stamped with the sequence of the last
// change it includes.
func (s *Store) Summary() models.TestSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Summary.Clone()
}

// Runner returns the runner status stamped with its sequence.
func (s *Store) Runner() models.RunnerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Runner.Clone()
}

// SetSelectedFile changes the selection. The empty path clears it; any other
// path must be part of the workspace listing.
func (s *Store) SetSelectedFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path != "" && !s.state.Workspace.Contains(path) {
		return errors.InvalidInput(fmt.Sprintf("%s is not a test file in this workspace", path)).
			WithDetail("path", path)
	}
	s.state.SelectedFile = path
	s.broadcast(Event{Topic: TopicSelectedFile, SelectedFile: &path})
	return nil
}

// ApplyUpdate modifies the state and notifies subscribers. Summary and runner
// changes are stamped with the next sequence number of their topic.
func (s *Store) ApplyUpdate(u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Type {
	case UpdateWorkspace:
		listing, ok := u.Payload.(models.WorkspaceListing)
		if !ok {
			return payloadError(u)
		}
		s.state.Workspace = listing
		s.broadcast(Event{Topic: TopicWorkspace, Workspace: &listing})
		if s.state.SelectedFile != "" && !listing.Contains(s.state.SelectedFile) {
			none := ""
			s.state.SelectedFile = none
			s.broadcast(Event{Topic: TopicSelectedFile, SelectedFile: &none})
		}

	case UpdateSummary:
		change, ok := u.Payload.(SummaryChange)
		if !ok {
			return payloadError(u)
		}
		delta := models.SummaryDelta{Seq: s.state.Summary.Seq + 1, Path: change.Path, Summary: change.Summary}
		next, err := models.ApplySummaryDelta(s.state.Summary, delta)
		if err != nil {
			return errors.MalformedEvent(string(TopicSummary), err)
		}
		s.state.Summary = next
		s.broadcast(Event{Topic: TopicSummary, Summary: &delta})

	case UpdateRunner:
		change, ok := u.Payload.(RunnerChange)
		if !ok {
			return payloadError(u)
		}
		delta := models.RunnerStatusDelta{
			Seq:        s.state.Runner.Seq + 1,
			RunnerID:   change.RunnerID,
			Status:     change.Status,
			ActiveFile: change.ActiveFile,
			Removed:    change.Removed,
		}
		next, err := models.ApplyRunnerDelta(s.state.Runner, delta)
		if err != nil {
			return errors.MalformedEvent(string(TopicRunnerStatus), err)
		}
		s.state.Runner = next
		s.broadcast(Event{Topic: TopicRunnerStatus, Runner: &delta})

	default:
		return errors.InvalidInput(fmt.Sprintf("unknown update type %q", u.Type))
	}
	return nil
}

// broadcast sends ev to the topic's subscribers. Callers hold mu.
func (s *Store) broadcast(ev Event) {
	for ch := range s.subscribers[ev.Topic] {
		select {
		case ch <- ev:
		default:
			// Non-blocking send to prevent slow clients from stalling the
			// daemon. Sequenced subscribers see the gap and resync.
		}
	}
}

// Subscribe creates a new subscription channel for topic.
func (s *Store) Subscribe(topic Topic) chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, 100) // Buffered
	if s.subscribers[topic] == nil {
		s.subscribers[topic] = make(map[chan Event]struct{})
	}
	s.subscribers[topic][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call more than once.
func (s *Store) Unsubscribe(topic Topic, ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[topic][ch]; !ok {
		return
	}
	delete(s.subscribers[topic], ch)
	close(ch)
}

// Subscribers returns the number of active subscriptions for topic.
func (s *Store) Subscribers(topic Topic) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers[topic])
}

func payloadError(u Update) error {
	return errors.InvalidInput(fmt.Sprintf("unexpected payload %T for %s update", u.Payload, u.Type)).
		WithDetail("source", u.Source)
}

func cloneListing(l models.WorkspaceListing) models.WorkspaceListing {
	files := make([]models.FileEntry, len(l.Files))
	copy(files, l.Files)
	return models.WorkspaceListing{ProjectRoot: l.ProjectRoot, Files: files}
}
