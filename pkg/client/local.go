package client

import (
	"context"
	"sync"

	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/pkg/models"
)

// LocalClient implements Client by reading an in-process daemon store.
// This is used when the daemon is not running, providing the same API
// but executing all operations in-process.
type LocalClient struct {
	store *store.Store

	closeOnce sync.Once
	onClose   func()
}

// NewLocalClient creates a LocalClient over st. onClose, if set, runs once
// when the client is closed; callers use it to stop the collectors feeding st.
func NewLocalClient(st *store.Store, onClose func()) *LocalClient {
	return &LocalClient{store: st, onClose: onClose}
}

// Store returns the backing store.
func (c *LocalClient) Store() *store.Store { return c.store }

// FetchSelectedFile returns the store's selected file.
func (c *LocalClient) FetchSelectedFile(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.store.SelectedFile(), nil
}

// FetchWorkspace returns the workspace listing.
func (c *LocalClient) FetchWorkspace(ctx context.Context) (models.WorkspaceListing, error) {
	if err := ctx.Err(); err != nil {
		return models.WorkspaceListing{}, err
	}
	return c.store.Workspace(), nil
}

// FetchSummary returns the test summary.
func (c *LocalClient) FetchSummary(ctx context.Context) (models.TestSummary, error) {
	if err := ctx.Err(); err != nil {
		return models.TestSummary{}, err
	}
	return c.store.Summary(), nil
}

// FetchRunnerStatus returns the runner status.
func (c *LocalClient) FetchRunnerStatus(ctx context.Context) (models.RunnerStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.RunnerStatus{}, err
	}
	return c.store.Runner(), nil
}

// SetSelectedFile changes the store's selection.
func (c *LocalClient) SetSelectedFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.store.SetSelectedFile(path)
}

// SubscribeSummary streams summary deltas from the store.
func (c *LocalClient) SubscribeSummary(ctx context.Context) (<-chan models.SummaryDelta, error) {
	return forward(ctx, c.store, store.TopicSummary, func(ev store.Event) (models.SummaryDelta, bool) {
		if ev.Summary == nil {
			return models.SummaryDelta{}, false
		}
		return *ev.Summary, true
	}), nil
}

// SubscribeRunnerStatus streams runner status deltas from the store.
func (c *LocalClient) SubscribeRunnerStatus(ctx context.Context) (<-chan models.RunnerStatusDelta, error) {
	return forward(ctx, c.store, store.TopicRunnerStatus, func(ev store.Event) (models.RunnerStatusDelta, bool) {
		if ev.Runner == nil {
			return models.RunnerStatusDelta{}, false
		}
		return *ev.Runner, true
	}), nil
}

// SubscribeWorkspace streams workspace listings from the store.
func (c *LocalClient) SubscribeWorkspace(ctx context.Context) (<-chan models.WorkspaceListing, error) {
	return forward(ctx, c.store, store.TopicWorkspace, func(ev store.Event) (models.WorkspaceListing, bool) {
		if ev.Workspace == nil {
			return models.WorkspaceListing{}, false
		}
		return *ev.Workspace, true
	}), nil
}

// SubscribeSelectedFile streams selection changes from the store.
func (c *LocalClient) SubscribeSelectedFile(ctx context.Context) (<-chan string, error) {
	return forward(ctx, c.store, store.TopicSelectedFile, func(ev store.Event) (string, bool) {
		if ev.SelectedFile == nil {
			return "", false
		}
		return *ev.SelectedFile, true
	}), nil
}

// forward relays one store topic until ctx ends. The store subscription is
// registered before forward returns, so no later change is missed.
func forward[E any](ctx context.Context, st *store.Store, topic store.Topic, pick func(store.Event) (E, bool)) <-chan E {
	in := st.Subscribe(topic)
	out := make(chan E, 16)
	go func() {
		<-ctx.Done()
		st.Unsubscribe(topic, in)
	}()
	go func() {
		defer close(out)
		for ev := range in {
			v, ok := pick(ev)
			if !ok {
				continue
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// IsRunning returns false since this is the local fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close stops whatever feeds the store.
func (c *LocalClient) Close() error {
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

// Ensure LocalClient implements Client interface.
var _ Client = (*LocalClient)(nil)
