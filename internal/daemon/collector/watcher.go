package collector

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// dirWatcher watches a set of directories and reports debounced changes.
// fsnotify does not recurse, so every directory is added explicitly and the
// set is re-synced after each rescan.
type dirWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logrus.Entry
	changes  chan string

	mu      sync.Mutex
	watched map[string]bool
	timer   *time.Timer
	last    string
}

func newDirWatcher(debounce time.Duration, logger *logrus.Entry) (*dirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &dirWatcher{
		watcher:  watcher,
		debounce: debounce,
		logger:   logger,
		changes:  make(chan string, 1),
		watched:  make(map[string]bool),
	}, nil
}

// Changes delivers the last changed path once events have been quiet for
// the debounce interval.
func (w *dirWatcher) Changes() <-chan string { return w.changes }

// Sync makes the watched set equal to dirs.
func (w *dirWatcher) Sync(dirs []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	want := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		want[d] = true
		if w.watched[d] {
			continue
		}
		if err := w.watcher.Add(d); err != nil {
			w.logger.WithError(err).WithField("dir", d).Debug("Failed to watch directory")
			continue
		}
		w.watched[d] = true
	}
	for d := range w.watched {
		if !want[d] {
			_ = w.watcher.Remove(d)
			delete(w.watched, d)
		}
	}
}

// Start forwards events until ctx is cancelled or the watcher is closed.
func (w *dirWatcher) Start(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			w.handleChange(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watcher error")
		case <-ctx.Done():
			return
		}
	}
}

// handleChange restarts the debounce timer.
func (w *dirWatcher) handleChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.last = path
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *dirWatcher) fire() {
	w.mu.Lock()
	path := w.last
	w.mu.Unlock()

	select {
	case w.changes <- path:
	default:
		// A rescan is already queued.
	}
}

// Close stops the watcher and releases resources.
func (w *dirWatcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
