// Package explorer owns the lifecycle of one workspace view: the snapshot
// store, the two live channels and the selection controller. Everything it
// starts is stopped by Close.
package explorer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/channel"
	"github.com/grovetools/testwatch/pkg/client"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/grovetools/testwatch/pkg/selection"
	"github.com/grovetools/testwatch/pkg/snapshot"
	"github.com/grovetools/testwatch/pkg/view"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type (
	summaryChannel = channel.Channel[models.TestSummary, models.SummaryDelta, models.TestSummary]
	runnerChannel  = channel.Channel[models.RunnerStatus, models.RunnerStatusDelta, models.RunnerStatus]
)

// WorkspaceWatcher is implemented by backends that push listing changes.
type WorkspaceWatcher interface {
	SubscribeWorkspace(ctx context.Context) (<-chan models.WorkspaceListing, error)
}

// SelectionWatcher is implemented by backends that push selection changes.
type SelectionWatcher interface {
	SubscribeSelectedFile(ctx context.Context) (<-chan string, error)
}

// Option configures an Explorer.
type Option func(*Explorer)

// WithLogger sets the logger handed to every component.
func WithLogger(l *logrus.Entry) Option {
	return func(e *Explorer) { e.logger = l }
}

// WithMutationTimeout bounds each selection mutation.
func WithMutationTimeout(d time.Duration) Option {
	return func(e *Explorer) { e.mutationTimeout = d }
}

// WithBackOff sets the reconnect policy of both channels.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(e *Explorer) { e.backOff = fn }
}

// WithWorkspaceWatch refetches the listing whenever w reports a change.
func WithWorkspaceWatch(w WorkspaceWatcher) Option {
	return func(e *Explorer) { e.watcher = w }
}

// WithSelectionWatch follows selection changes made outside this view. Each
// change refetches the selected file; the controller adopts it unless one of
// its own intents is pending.
func WithSelectionWatch(w SelectionWatcher) Option {
	return func(e *Explorer) { e.selWatcher = w }
}

// Explorer is the workspace view.
type Explorer struct {
	backend         client.Backend
	logger          *logrus.Entry
	mutationTimeout time.Duration
	backOff         func() backoff.BackOff
	watcher         WorkspaceWatcher
	selWatcher      SelectionWatcher

	snapshots *snapshot.Store
	summary   *summaryChannel
	runner    *runnerChannel
	selection *selection.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	opened  bool
	closed  bool
	changes chan struct{}
}

// New wires the components to backend. Nothing is fetched until Open.
func New(backend client.Backend, opts ...Option) *Explorer {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Explorer{
		backend: backend,
		logger:  logging.NewLogger("explorer"),
		ctx:     ctx,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.snapshots = snapshot.New(backend,
		snapshot.WithLogger(e.logger.WithField("component", "snapshot")),
		snapshot.WithNotify(e.changed),
	)

	e.summary = channel.New(channel.Config[models.TestSummary, models.SummaryDelta, models.TestSummary]{
		Label: view.SourceSummary,
		Source: channel.SourceFuncs[models.TestSummary, models.SummaryDelta]{
			FetchFunc:     backend.FetchSummary,
			SubscribeFunc: backend.SubscribeSummary,
		},
		Select:      models.TestSummary.Clone,
		Apply:       models.ApplySummaryDelta,
		SnapshotSeq: func(s models.TestSummary) uint64 { return s.Seq },
		EventSeq:    func(d models.SummaryDelta) uint64 { return d.Seq },
		CatchUp:     true,
		Notify:      e.changed,
		Logger:      e.logger.WithField("component", "channel"),
		BackOff:     e.backOff,
	})

	e.runner = channel.New(channel.Config[models.RunnerStatus, models.RunnerStatusDelta, models.RunnerStatus]{
		Label: view.SourceRunner,
		Source: channel.SourceFuncs[models.RunnerStatus, models.RunnerStatusDelta]{
			FetchFunc:     backend.FetchRunnerStatus,
			SubscribeFunc: backend.SubscribeRunnerStatus,
		},
		Select:      models.RunnerStatus.Clone,
		Apply:       models.ApplyRunnerDelta,
		SnapshotSeq: func(r models.RunnerStatus) uint64 { return r.Seq },
		EventSeq:    func(d models.RunnerStatusDelta) uint64 { return d.Seq },
		CatchUp:     true,
		Notify:      e.changed,
		Logger:      e.logger.WithField("component", "channel"),
		BackOff:     e.backOff,
	})

	e.selection = selection.New(backend, e.snapshots,
		selection.WithLogger(e.logger.WithField("component", "selection")),
		selection.WithNotify(e.changed),
		selection.WithTimeout(e.mutationTimeout),
	)
	return e
}

// Open fetches the selected file and the listing, seeds the selection with
// the server's choice and opens both live channels. Fetch failures do not
// fail Open; they show up in the model.
func (e *Explorer) Open(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.Closed("explorer")
	}
	if e.opened {
		e.mu.Unlock()
		return nil
	}
	e.opened = true
	e.mu.Unlock()

	// Channels live as long as the view, not as long as ctx.
	if err := e.summary.Open(e.ctx); err != nil {
		return err
	}
	if err := e.runner.Open(e.ctx); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := e.snapshots.RefetchSelectedFile(ctx)
		return err
	})
	g.Go(func() error {
		_, err := e.snapshots.RefetchWorkspace(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		e.logger.WithError(err).Warn("Initial fetch failed")
	}
	e.seed()

	e.mu.Lock()
	if !e.closed {
		if e.watcher != nil {
			e.wg.Add(1)
			go e.watchWorkspace()
		}
		if e.selWatcher != nil {
			e.wg.Add(1)
			go e.watchSelection()
		}
	}
	e.mu.Unlock()
	return nil
}

// seed hands the fetched selected file to the controller. The controller
// ignores it once the user has issued an intent.
func (e *Explorer) seed() {
	if sel := e.snapshots.SelectedFile(); sel.Loaded {
		e.selection.Seed(sel.Value)
	}
}

func (e *Explorer) watchWorkspace() {
	defer e.wg.Done()
	listings, err := e.watcher.SubscribeWorkspace(e.ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Workspace watch unavailable")
		return
	}
	for range listings {
		if err := e.RefreshFiles(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.WithError(err).Debug("Workspace refresh failed")
		}
	}
}

func (e *Explorer) watchSelection() {
	defer e.wg.Done()
	changes, err := e.selWatcher.SubscribeSelectedFile(e.ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Selection watch unavailable")
		return
	}
	for range changes {
		// The frame only signals a change; the refetch reads the latest value
		// so frames arriving late cannot roll the selection back.
		since := e.selection.State().Intent
		path, err := e.snapshots.RefetchSelectedFile(e.ctx)
		if err != nil {
			if e.ctx.Err() == nil {
				e.logger.WithError(err).Debug("Selection refresh failed")
			}
			continue
		}
		e.selection.Adopt(since, path)
	}
}

// Model composes the current render input.
func (e *Explorer) Model() view.Model {
	return view.Compose(view.Input{
		Selection:    e.selection.State(),
		Workspace:    e.snapshots.Workspace(),
		SelectedFile: e.snapshots.SelectedFile(),
		Summary:      e.summary.Snapshot(),
		Runner:       e.runner.Snapshot(),
	})
}

// Changes signals that Model may have changed. Bursts are coalesced into a
// single signal; the channel is closed by Close.
func (e *Explorer) Changes() <-chan struct{} {
	return e.changes
}

func (e *Explorer) changed() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

// SelectFile selects path. It returns the intent number, 0 once closed.
func (e *Explorer) SelectFile(path string) uint64 { return e.selection.SelectFile(path) }

// SelectFromSearch selects path and closes search once it is confirmed.
func (e *Explorer) SelectFromSearch(path string) uint64 { return e.selection.SelectFromSearch(path) }

// OpenSearch shows the search overlay.
func (e *Explorer) OpenSearch() { e.selection.OpenSearch() }

// CloseSearch hides the search overlay.
func (e *Explorer) CloseSearch() { e.selection.CloseSearch() }

// DismissError clears the selection error.
func (e *Explorer) DismissError() { e.selection.DismissError() }

// RefreshFiles re-fetches the workspace listing. If the selected file never
// loaded it is retried too.
func (e *Explorer) RefreshFiles(ctx context.Context) error {
	if e.isClosed() {
		return errors.Closed("explorer")
	}
	if !e.snapshots.Loaded(snapshot.KindSelectedFile) {
		if _, err := e.snapshots.RefetchSelectedFile(ctx); err == nil {
			e.seed()
		}
	}
	_, err := e.snapshots.RefetchWorkspace(ctx)
	return err
}

// WaitReady blocks until every source has produced a value or ctx ends. It
// drains Changes, so it must not be combined with another Changes reader.
func (e *Explorer) WaitReady(ctx context.Context) (view.Model, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		m := e.Model()
		if m.Ready() {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return m, ctx.Err()
		case _, ok := <-e.changes:
			if !ok {
				return e.Model(), errors.Closed("explorer")
			}
		case <-ticker.C:
		}
	}
}

func (e *Explorer) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close tears down the controller and both channels and waits for their
// goroutines. It is safe to call more than once.
func (e *Explorer) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.changes)
	e.mu.Unlock()

	e.cancel()
	e.selection.Close()
	summaryErr := e.summary.Close()
	runnerErr := e.runner.Close()
	e.wg.Wait()

	e.logger.Debug("Explorer closed")
	if summaryErr != nil {
		return summaryErr
	}
	return runnerErr
}
