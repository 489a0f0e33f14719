package selection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/grovetools/testwatch/errors"
)

const waitTimeout = 2 * time.Second

type call struct {
	path  string
	reply chan error
}

// fakeServer holds every mutation until the test resolves it. Successful
// mutations are applied in intent order, the way the daemon serializes them.
type fakeServer struct {
	calls chan call

	mu       sync.Mutex
	selected string
	// override, when set, is returned by refetches regardless of mutations.
	override  *string
	refetches atomic.Int32
}

func newFakeServer() *fakeServer {
	return &fakeServer{calls: make(chan call, 64)}
}

func (s *fakeServer) SetSelectedFile(ctx context.Context, path string) error {
	c := call{path: path, reply: make(chan error, 1)}
	s.calls <- c
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeServer) RefetchSelectedFile(ctx context.Context) (string, error) {
	s.refetches.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override != nil {
		return *s.override, nil
	}
	return s.selected, nil
}

func (s *fakeServer) set(path string) {
	s.mu.Lock()
	s.selected = path
	s.mu.Unlock()
}

func (s *fakeServer) next(t require.TestingT) call {
	select {
	case c := <-s.calls:
		return c
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for mutation")
		return call{}
	}
}

// collect gathers n pending mutations keyed by path.
func (s *fakeServer) collect(t require.TestingT, n int) map[string]call {
	pending := make(map[string]call, n)
	for i := 0; i < n; i++ {
		c := s.next(t)
		pending[c.path] = c
	}
	return pending
}

func waitState(t require.TestingT, c *Controller, cond func(State) bool, msg string) {
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond(c.State()) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.FailNow(t, msg, "last state: %+v", c.State())
}

func idleWith(path string) func(State) bool {
	return func(s State) bool { return s.Phase == Idle && s.SelectedFile == path }
}

func TestInitialState(t *testing.T) {
	c := New(newFakeServer(), nil)
	defer c.Close()

	s := c.State()
	assert.Equal(t, Idle, s.Phase)
	assert.Empty(t, s.SelectedFile)
	assert.False(t, s.SearchOpen)
	assert.Zero(t, s.Intent)
}

func TestSelectFileConfirmedByRefetch(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, srv)
	defer c.Close()

	intent := c.SelectFile("a.test")
	assert.Equal(t, uint64(1), intent)

	s := c.State()
	assert.Equal(t, Selecting, s.Phase)
	assert.Equal(t, "a.test", s.PendingFile)
	assert.Equal(t, "a.test", s.Current())
	assert.Empty(t, s.SelectedFile, "nothing is confirmed yet")

	pending := srv.next(t)
	srv.set(pending.path)
	pending.reply <- nil

	waitState(t, c, idleWith("a.test"), "selection never confirmed")
	require.Eventually(t, func() bool { return srv.refetches.Load() == 1 }, waitTimeout, 2*time.Millisecond)
	assert.Equal(t, "a.test", c.State().SelectedFile)
	assert.NoError(t, c.State().Err)
}

func TestRejectedSelectionRollsBack(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, srv)
	defer c.Close()
	c.Seed("x.test")

	c.SelectFile("a.test")
	srv.next(t).reply <- fmt.Errorf("file not in workspace")

	waitState(t, c, func(s State) bool { return s.Phase == Idle && s.Err != nil }, "rejection not surfaced")
	s := c.State()
	assert.Equal(t, "x.test", s.SelectedFile, "reverts to the last confirmed file")
	assert.True(t, errors.Is(s.Err, errors.ErrCodeRemoteRejected))
	assert.True(t, errors.IsRecoverable(s.Err))
	assert.Zero(t, srv.refetches.Load(), "a rejected mutation is not reconciled")

	c.DismissError()
	assert.NoError(t, c.State().Err)
}

func TestRollbackAfterEarlierConfirmation(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, srv)
	defer c.Close()

	c.SelectFile("a.test")
	srv.set("a.test")
	srv.next(t).reply <- nil
	waitState(t, c, idleWith("a.test"), "first selection not confirmed")

	c.SelectFile("b.test")
	srv.next(t).reply <- fmt.Errorf("rejected")
	waitState(t, c, func(s State) bool { return s.Phase == Idle && s.Err != nil }, "rejection not surfaced")
	assert.Equal(t, "a.test", c.State().SelectedFile)
}

func TestLatestIntentWins(t *testing.T) {
	tests := []struct {
		name     string
		resolveA error
		bFirst   bool
	}{
		{name: "a then b", bFirst: false},
		{name: "b then a", bFirst: true},
		{name: "a rejected then b", resolveA: fmt.Errorf("boom")},
		{name: "b then a rejected", resolveA: fmt.Errorf("boom"), bFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newFakeServer()
			c := New(srv, srv)
			defer c.Close()

			c.SelectFile("a.test")
			c.SelectFile("b.test")
			pending := srv.collect(t, 2)
			srv.set("b.test")

			if tt.bFirst {
				pending["b.test"].reply <- nil
				waitState(t, c, idleWith("b.test"), "b not confirmed")
				pending["a.test"].reply <- tt.resolveA
			} else {
				pending["a.test"].reply <- tt.resolveA
				// The superseded result must leave the latest intent pending.
				time.Sleep(20 * time.Millisecond)
				s := c.State()
				assert.Equal(t, Selecting, s.Phase)
				assert.Equal(t, "b.test", s.PendingFile)
				assert.NoError(t, s.Err)
				pending["b.test"].reply <- nil
			}

			waitState(t, c, idleWith("b.test"), "b not confirmed")
			c.Close()
			s := c.State()
			assert.Equal(t, "b.test", s.SelectedFile)
			assert.NoError(t, s.Err, "a stale rejection is never surfaced")
		})
	}
}

func TestLastIntentWinsProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "intents")
		paths := make([]string, n)
		for i := range paths {
			paths[i] = fmt.Sprintf("f%d.test", i)
		}
		outcomes := rapid.SliceOfN(rapid.Bool(), n, n).Draw(rt, "accepted")
		order := rapid.Permutation(paths).Draw(rt, "resolution order")

		srv := newFakeServer()
		c := New(srv, srv)
		defer c.Close()
		c.Seed("seed.test")

		for _, p := range paths {
			c.SelectFile(p)
		}
		pending := srv.collect(rt, n)

		last := paths[n-1]
		want := "seed.test"
		if outcomes[n-1] {
			want = last
		}
		srv.set(want)

		accepted := make(map[string]bool, n)
		for i, p := range paths {
			accepted[p] = outcomes[i]
		}
		for _, p := range order {
			var err error
			if !accepted[p] {
				err = fmt.Errorf("rejected %s", p)
			}
			pending[p].reply <- err
		}

		waitState(rt, c, func(s State) bool { return s.Phase == Idle }, "latest intent never resolved")
		if outcomes[n-1] {
			require.Eventually(rt, func() bool { return srv.refetches.Load() >= 1 }, waitTimeout, 2*time.Millisecond)
		}
		c.Close()

		s := c.State()
		if s.SelectedFile != want {
			rt.Fatalf("selected %q, want %q (order %v, accepted %v)", s.SelectedFile, want, order, outcomes)
		}
		if outcomes[n-1] && s.Err != nil {
			rt.Fatalf("unexpected error after accepted latest intent: %v", s.Err)
		}
		if !outcomes[n-1] && !errors.Is(s.Err, errors.ErrCodeRemoteRejected) {
			rt.Fatalf("expected rejection error, got %v", s.Err)
		}
	})
}

func TestReconcileAdoptsServerValue(t *testing.T) {
	srv := newFakeServer()
	other := "other.test"
	srv.override = &other

	var notified atomic.Int32
	c := New(srv, srv, WithNotify(func() { notified.Add(1) }))
	defer c.Close()

	c.SelectFile("a.test")
	srv.next(t).reply <- nil

	waitState(t, c, idleWith("other.test"), "server value not adopted")
	assert.GreaterOrEqual(t, notified.Load(), int32(3))
}

func TestSearchIsIndependentOfSelection(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil)
	defer c.Close()

	c.SelectFile("a.test")
	c.OpenSearch()
	s := c.State()
	assert.True(t, s.SearchOpen)
	assert.Equal(t, Selecting, s.Phase)

	c.CloseSearch()
	c.CloseSearch()
	assert.False(t, c.State().SearchOpen)
	assert.Equal(t, Selecting, c.State().Phase)

	srv.next(t).reply <- nil
	waitState(t, c, idleWith("a.test"), "selection not confirmed")
	assert.False(t, c.State().SearchOpen)
}

func TestSelectFromSearchClosesOverlayOnSuccess(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil)
	defer c.Close()

	c.OpenSearch()
	c.SelectFromSearch("a.test")
	assert.True(t, c.State().SearchOpen, "overlay stays open while pending")

	srv.next(t).reply <- fmt.Errorf("rejected")
	waitState(t, c, func(s State) bool { return s.Phase == Idle && s.Err != nil }, "rejection not surfaced")
	assert.True(t, c.State().SearchOpen, "a rejected search selection keeps the overlay open")

	c.SelectFromSearch("b.test")
	srv.next(t).reply <- nil
	waitState(t, c, idleWith("b.test"), "search selection not confirmed")
	assert.False(t, c.State().SearchOpen)
}

func TestSupersededSearchSelectionDoesNotCloseOverlay(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil)
	defer c.Close()

	c.OpenSearch()
	c.SelectFromSearch("a.test")
	c.SelectFile("b.test")
	pending := srv.collect(t, 2)

	pending["a.test"].reply <- nil
	pending["b.test"].reply <- nil
	waitState(t, c, idleWith("b.test"), "selection not confirmed")
	assert.True(t, c.State().SearchOpen)
}

func TestSeedIgnoredAfterIntent(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil)
	defer c.Close()

	c.Seed("default.test")
	assert.Equal(t, "default.test", c.State().SelectedFile)

	c.SelectFile("a.test")
	c.Seed("late.test")
	assert.Equal(t, "a.test", c.State().PendingFile)

	srv.next(t).reply <- nil
	waitState(t, c, idleWith("a.test"), "selection not confirmed")
}

func TestAdoptExternalSelection(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil)
	defer c.Close()
	c.Seed("a.test")

	assert.True(t, c.Adopt(0, "b.test"))
	assert.Equal(t, "b.test", c.State().SelectedFile)
	assert.False(t, c.Adopt(0, "b.test"), "same value is not a change")
	assert.True(t, c.Adopt(0, ""), "the server may clear the selection")

	intent := c.SelectFile("c.test")
	srv.next(t)
	assert.False(t, c.Adopt(intent, "d.test"), "ignored while an intent is pending")
	assert.Equal(t, "c.test", c.State().PendingFile)
}

func TestAdoptIgnoresValueFetchedBeforeLaterIntent(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil)
	defer c.Close()

	since := c.State().Intent
	c.SelectFile("a.test")
	srv.next(t).reply <- nil
	waitState(t, c, idleWith("a.test"), "selection not confirmed")

	// The value was fetched before the intent above was issued.
	assert.False(t, c.Adopt(since, "old.test"))
	assert.Equal(t, "a.test", c.State().SelectedFile)
}

func TestPendingMutationStaysObservable(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil)
	defer c.Close()

	c.SelectFile("a.test")
	srv.next(t)

	time.Sleep(20 * time.Millisecond)
	s := c.State()
	assert.Equal(t, Selecting, s.Phase)
	assert.Equal(t, "a.test", s.PendingFile)
}

func TestTimeoutRejectsMutation(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, nil, WithTimeout(20*time.Millisecond))
	defer c.Close()
	c.Seed("x.test")

	c.SelectFile("a.test")
	srv.next(t)

	waitState(t, c, func(s State) bool { return s.Phase == Idle && s.Err != nil }, "timeout not surfaced")
	assert.Equal(t, "x.test", c.State().SelectedFile)
	assert.True(t, errors.Is(c.State().Err, errors.ErrCodeRemoteRejected))
}

func TestCloseIgnoresInflightResults(t *testing.T) {
	srv := newFakeServer()
	c := New(srv, srv)

	c.SelectFile("a.test")
	srv.next(t)
	c.Close()

	s := c.State()
	assert.Equal(t, Selecting, s.Phase)
	assert.NoError(t, s.Err)
	assert.Zero(t, c.SelectFile("b.test"), "no intents after close")
	c.Close()
}
