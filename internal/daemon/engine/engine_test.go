package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/models"
)

// scriptedCollector emits a fixed list of updates and then waits.
type scriptedCollector struct {
	name    string
	updates []store.Update
}

func (c scriptedCollector) Name() string { return c.name }

func (c scriptedCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	for _, u := range c.updates {
		select {
		case updates <- u:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func TestEngineAppliesCollectorUpdates(t *testing.T) {
	st := store.New()
	eng := New(st, logging.NewLogger("engine-test"))
	eng.Register(scriptedCollector{name: "workspace", updates: []store.Update{{
		Type:    store.UpdateWorkspace,
		Payload: models.WorkspaceListing{ProjectRoot: "/p", Files: []models.FileEntry{{Path: "a.test"}}},
	}}})
	eng.Register(scriptedCollector{name: "results", updates: []store.Update{
		{Type: store.UpdateRunner, Payload: store.RunnerChange{RunnerID: "r1", Status: "bogus"}},
		{Type: store.UpdateRunner, Payload: store.RunnerChange{RunnerID: "r1", Status: models.RunnerRunning, ActiveFile: "a.test"}},
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return eng.Store().Workspace().Contains("a.test") && st.Runner().IsRunning("a.test")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), st.Runner().Seq, "the malformed update consumed no sequence number")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}

// flakyCollector fails its first runs, then behaves like scriptedCollector.
type flakyCollector struct {
	scriptedCollector
	failures int32
	runs     atomic.Int32
}

func (c *flakyCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	if c.runs.Add(1) <= c.failures {
		return fmt.Errorf("events file not readable")
	}
	return c.scriptedCollector.Run(ctx, st, updates)
}

func TestEngineRestartsFailedCollector(t *testing.T) {
	st := store.New()
	eng := New(st, logging.NewLogger("engine-test"))
	eng.SetRestartBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) })

	col := &flakyCollector{
		scriptedCollector: scriptedCollector{name: "results", updates: []store.Update{{
			Type:    store.UpdateWorkspace,
			Payload: models.WorkspaceListing{ProjectRoot: "/p", Files: []models.FileEntry{{Path: "a.test"}}},
		}}},
		failures: 2,
	}
	eng.Register(col)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Start(ctx)

	require.Eventually(t, func() bool {
		return st.Workspace().Contains("a.test")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), col.runs.Load())
}

// onceCollector returns cleanly right away.
type onceCollector struct{ runs atomic.Int32 }

func (c *onceCollector) Name() string { return "once" }

func (c *onceCollector) Run(context.Context, *store.Store, chan<- store.Update) error {
	c.runs.Add(1)
	return nil
}

func TestEngineDoesNotRestartCleanExit(t *testing.T) {
	eng := New(store.New(), logging.NewLogger("engine-test"))
	eng.SetRestartBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) })
	col := &onceCollector{}
	eng.Register(col)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	eng.Start(ctx)
	assert.Equal(t, int32(1), col.runs.Load())
}
