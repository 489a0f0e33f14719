// Package selection tracks which test file is open and whether the search
// overlay is shown.
//
// File selection and search are two independent state machines. Selecting a
// file updates local state immediately and persists the choice through a
// remote mutation; completions are matched against a monotonically increasing
// intent sequence so only the latest intent can change the state.
package selection

import (
	"context"
	"sync"
	"time"

	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/logging"
	"github.com/sirupsen/logrus"
)

// Remote persists the selection server-side.
type Remote interface {
	SetSelectedFile(ctx context.Context, path string) error
}

// Refetcher returns the authoritative selected file after a mutation.
type Refetcher interface {
	RefetchSelectedFile(ctx context.Context) (string, error)
}

// Phase is the state of the file-selection machine.
type Phase int

const (
	// Idle holds a confirmed selection (possibly none).
	Idle Phase = iota
	// Selecting waits for the remote mutation of the latest intent.
	Selecting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	}
	return "unknown"
}

// State is a copy of the controller state.
type State struct {
	Phase Phase
	// SelectedFile is the last confirmed selection; empty means none.
	SelectedFile string
	// PendingFile is the target of the in-flight intent while Selecting.
	PendingFile string
	SearchOpen  bool
	// Intent is the sequence number of the latest intent.
	Intent uint64
	// Err is the last recoverable error, cleared by the next intent or
	// DismissError.
	Err error
}

// Current returns the file to display: the pending file while a selection
// is in flight, the confirmed one otherwise.
func (s State) Current() string {
	if s.Phase == Selecting {
		return s.PendingFile
	}
	return s.SelectedFile
}

// Controller is the only writer of the selection state.
type Controller struct {
	remote    Remote
	refetcher Refetcher
	logger    *logrus.Entry
	notify    func()
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	closed bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l *logrus.Entry) Option {
	return func(c *Controller) { c.logger = l }
}

// WithNotify registers a callback run after every state change.
func WithNotify(fn func()) Option {
	return func(c *Controller) { c.notify = fn }
}

// WithTimeout bounds each remote mutation. Zero leaves mutations pending
// until they resolve.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// New creates a controller in Idle(none) with search closed. refetcher may
// be nil, in which case successful mutations are not reconciled.
func New(remote Remote, refetcher Refetcher, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		remote:    remote,
		refetcher: refetcher,
		logger:    logging.NewLogger("selection"),
		notify:    func() {},
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Seed sets the server-provided default selection. It has no effect once an
// intent has been issued.
func (c *Controller) Seed(path string) {
	c.mu.Lock()
	if c.state.Intent != 0 || c.closed {
		c.mu.Unlock()
		return
	}
	c.state.SelectedFile = path
	c.mu.Unlock()
	c.notify()
}

// Adopt takes a selection made elsewhere, by another client or by the server
// clearing a file that left the workspace. since is the intent number read
// before path was fetched; Adopt does nothing if an intent was issued after
// it or is still pending, since that intent reconciles on its own. It
// reports whether the state changed.
func (c *Controller) Adopt(since uint64, path string) bool {
	c.mu.Lock()
	if c.closed || c.state.Intent != since || c.state.Phase != Idle || c.state.SelectedFile == path {
		c.mu.Unlock()
		return false
	}
	c.logger.WithFields(logrus.Fields{
		"previous": c.state.SelectedFile,
		"server":   path,
	}).Debug("Adopting external selection")
	c.state.SelectedFile = path
	c.mu.Unlock()
	c.notify()
	return true
}

// SelectFile moves to Selecting(path) and persists the selection. It returns
// the intent sequence number, or 0 if the controller is closed.
func (c *Controller) SelectFile(path string) uint64 {
	return c.selectFile(path, false)
}

// SelectFromSearch selects path and closes the search overlay once the
// selection is confirmed.
func (c *Controller) SelectFromSearch(path string) uint64 {
	return c.selectFile(path, true)
}

// OpenSearch shows the search overlay.
func (c *Controller) OpenSearch() { c.setSearch(true) }

// CloseSearch hides the search overlay.
func (c *Controller) CloseSearch() { c.setSearch(false) }

// DismissError clears the recoverable error.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.state.Err = nil
	c.mu.Unlock()
	c.notify()
}

// Close stops accepting intents and waits for in-flight mutations to return.
// Their results are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Controller) setSearch(open bool) {
	c.mu.Lock()
	c.state.SearchOpen = open
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) selectFile(path string, fromSearch bool) uint64 {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.state.Intent++
	intent := c.state.Intent
	c.state.Phase = Selecting
	c.state.PendingFile = path
	c.state.Err = nil
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"intent": intent, "path": path}).Debug("Selecting file")
	c.notify()

	go c.commit(intent, path, fromSearch)
	return intent
}

// current reports whether intent is still the latest one. Callers hold mu.
func (c *Controller) current(intent uint64) bool {
	return !c.closed && intent == c.state.Intent
}

func (c *Controller) commit(intent uint64, path string, fromSearch bool) {
	defer c.wg.Done()

	ctx := c.ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := c.remote.SetSelectedFile(ctx, path)
	log := c.logger.WithFields(logrus.Fields{"intent": intent, "path": path})

	c.mu.Lock()
	if !c.current(intent) {
		c.mu.Unlock()
		log.WithError(err).Debug("Discarding superseded selection result")
		return
	}
	c.state.Phase = Idle
	c.state.PendingFile = ""
	if err != nil {
		c.state.Err = errors.RemoteRejected("set selected file", err).WithDetail("path", path)
		reverted := c.state.SelectedFile
		c.mu.Unlock()

		log.WithError(err).WithField("reverted_to", reverted).Warn("Selection rejected")
		c.notify()
		return
	}
	c.state.SelectedFile = path
	if fromSearch {
		c.state.SearchOpen = false
	}
	c.mu.Unlock()
	c.notify()

	c.reconcile(ctx, intent)
}

// reconcile re-fetches the server's selection after a confirmed mutation.
// The server value is authoritative and replaces the optimistic one unless a
// newer intent has been issued meanwhile.
func (c *Controller) reconcile(ctx context.Context, intent uint64) {
	if c.refetcher == nil {
		return
	}
	authoritative, err := c.refetcher.RefetchSelectedFile(ctx)
	if err != nil {
		c.logger.WithError(err).WithField("intent", intent).Warn("Could not confirm selection")
		return
	}

	c.mu.Lock()
	if !c.current(intent) || c.state.Phase != Idle {
		c.mu.Unlock()
		return
	}
	changed := authoritative != c.state.SelectedFile
	if changed {
		c.logger.WithFields(logrus.Fields{
			"intent":     intent,
			"optimistic": c.state.SelectedFile,
			"server":     authoritative,
		}).Info("Server selection differs, adopting server value")
		c.state.SelectedFile = authoritative
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}
