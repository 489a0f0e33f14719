// Package clienttest provides backends for testing code built on client.Backend.
package clienttest

import (
	"context"
	"sync"

	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/pkg/client"
	"github.com/grovetools/testwatch/pkg/models"
)

// Call names one Backend method.
type Call string

const (
	CallFetchSelectedFile     Call = "FetchSelectedFile"
	CallFetchWorkspace        Call = "FetchWorkspace"
	CallFetchSummary          Call = "FetchSummary"
	CallSubscribeSummary      Call = "SubscribeSummary"
	CallFetchRunnerStatus     Call = "FetchRunnerStatus"
	CallSubscribeRunnerStatus Call = "SubscribeRunnerStatus"
	CallSetSelectedFile       Call = "SetSelectedFile"
)

// NewStore returns a daemon store whose listing holds files.
func NewStore(files ...string) *store.Store {
	st := store.New()
	listing := models.WorkspaceListing{ProjectRoot: "/project"}
	for _, f := range files {
		listing.Files = append(listing.Files, models.FileEntry{Path: f})
	}
	if err := st.ApplyUpdate(store.Update{Type: store.UpdateWorkspace, Source: "clienttest", Payload: listing}); err != nil {
		panic(err)
	}
	return st
}

// Backend wraps a real backend and lets a test fail, hold or count
// individual calls. Held calls block until released or their context ends.
type Backend struct {
	inner client.Backend

	mu       sync.Mutex
	failures map[Call]error
	holds    map[Call]chan struct{}
	calls    map[Call]int
}

// Wrap returns a Backend delegating to inner.
func Wrap(inner client.Backend) *Backend {
	return &Backend{
		inner:    inner,
		failures: map[Call]error{},
		holds:    map[Call]chan struct{}{},
		calls:    map[Call]int{},
	}
}

// Local returns a Backend over an in-process store holding files.
func Local(files ...string) (*Backend, *store.Store) {
	st := NewStore(files...)
	return Wrap(client.NewLocalClient(st, nil)), st
}

// Fail makes every following call to c return err. A nil err clears it.
func (b *Backend) Fail(c Call, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, c)
		return
	}
	b.failures[c] = err
}

// Hold blocks calls to c until the returned release func is called.
func (b *Backend) Hold(c Call) (release func()) {
	gate := make(chan struct{})
	b.mu.Lock()
	b.holds[c] = gate
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if b.holds[c] == gate {
				delete(b.holds, c)
			}
			b.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times c was invoked.
func (b *Backend) Calls(c Call) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[c]
}

func (b *Backend) before(ctx context.Context, c Call) error {
	b.mu.Lock()
	b.calls[c]++
	gate := b.holds[c]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[c]
}

func (b *Backend) FetchSelectedFile(ctx context.Context) (string, error) {
	if err := b.before(ctx, CallFetchSelectedFile); err != nil {
		return "", err
	}
	return b.inner.FetchSelectedFile(ctx)
}

func (b *Backend) FetchWorkspace(ctx context.Context) (models.WorkspaceListing, error) {
	if err := b.before(ctx, CallFetchWorkspace); err != nil {
		return models.WorkspaceListing{}, err
	}
	return b.inner.FetchWorkspace(ctx)
}

func (b *Backend) FetchSummary(ctx context.Context) (models.TestSummary, error) {
	if err := b.before(ctx, CallFetchSummary); err != nil {
		return models.TestSummary{}, err
	}
	return b.inner.FetchSummary(ctx)
}

func (b *Backend) SubscribeSummary(ctx context.Context) (<-chan models.SummaryDelta, error) {
	if err := b.before(ctx, CallSubscribeSummary); err != nil {
		return nil, err
	}
	return b.inner.SubscribeSummary(ctx)
}

func (b *Backend) FetchRunnerStatus(ctx context.Context) (models.RunnerStatus, error) {
	if err := b.before(ctx, CallFetchRunnerStatus); err != nil {
		return models.RunnerStatus{}, err
	}
	return b.inner.FetchRunnerStatus(ctx)
}

func (b *Backend) SubscribeRunnerStatus(ctx context.Context) (<-chan models.RunnerStatusDelta, error) {
	if err := b.before(ctx, CallSubscribeRunnerStatus); err != nil {
		return nil, err
	}
	return b.inner.SubscribeRunnerStatus(ctx)
}

func (b *Backend) SetSelectedFile(ctx context.Context, path string) error {
	if err := b.before(ctx, CallSetSelectedFile); err != nil {
		return err
	}
	return b.inner.SetSelectedFile(ctx, path)
}

var _ client.Backend = (*Backend)(nil)
