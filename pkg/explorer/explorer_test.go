package explorer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/pkg/client"
	"github.com/grovetools/testwatch/pkg/client/clienttest"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/grovetools/testwatch/pkg/view"
)

const wait = 2 * time.Second

func fastBackOff() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }

func open(t *testing.T, backend client.Backend, opts ...Option) *Explorer {
	t.Helper()
	e := New(backend, append([]Option{WithBackOff(fastBackOff)}, opts...)...)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.Open(context.Background()))
	return e
}

func eventually(t *testing.T, e *Explorer, cond func(view.Model) bool, msg string) view.Model {
	t.Helper()
	var m view.Model
	require.Eventually(t, func() bool {
		m = e.Model()
		return cond(m)
	}, wait, 5*time.Millisecond, msg)
	return m
}

func row(m view.Model, path string) view.FileRow {
	for _, r := range m.Files {
		if r.Path == path {
			return r
		}
	}
	return view.FileRow{}
}

func passed(st *store.Store, path string, n int) error {
	return st.ApplyUpdate(store.Update{Type: store.UpdateSummary, Payload: store.SummaryChange{
		Path:    path,
		Summary: &models.FileSummary{Path: path, Status: models.TestStatusPassed, Passed: n},
	}})
}

func TestOpenLoadsEverySource(t *testing.T) {
	backend, st := clienttest.Local("a.test", "b.test")
	require.NoError(t, st.SetSelectedFile("b.test"))
	require.NoError(t, passed(st, "a.test", 3))

	e := open(t, backend)
	m := eventually(t, e, view.Model.Ready, "all sources load")

	assert.Equal(t, "/project", m.ProjectRoot)
	assert.Len(t, m.Files, 2)
	assert.Equal(t, "b.test", m.Selected, "selection is seeded from the server")
	require.NotNil(t, m.TestFile)
	assert.Equal(t, "b.test", m.TestFile.Path)
	require.NotNil(t, m.Totals)
	assert.Equal(t, 3, m.Totals.Passed)
	assert.Empty(t, m.Notices)
}

func TestSelectFilePersists(t *testing.T) {
	backend, st := clienttest.Local("a.test", "b.test")
	e := open(t, backend)
	eventually(t, e, view.Model.Ready, "ready")

	require.NotZero(t, e.SelectFile("a.test"))
	m := eventually(t, e, func(m view.Model) bool { return !m.Selecting && m.Selected == "a.test" }, "selection confirmed")

	assert.Equal(t, "a.test", st.SelectedFile())
	assert.True(t, row(m, "a.test").Selected)
	assert.Eventually(t, func() bool {
		return backend.Calls(clienttest.CallFetchSelectedFile) >= 2
	}, wait, 5*time.Millisecond, "confirmation refetches the selected file")
}

func TestPendingSelectionIsVisible(t *testing.T) {
	backend, st := clienttest.Local("a.test", "b.test")
	e := open(t, backend)
	eventually(t, e, view.Model.Ready, "ready")

	release := backend.Hold(clienttest.CallSetSelectedFile)
	e.SelectFile("b.test")

	m := e.Model()
	assert.True(t, m.Selecting)
	assert.Equal(t, "b.test", m.Selected)
	assert.True(t, row(m, "b.test").Pending)
	require.NotNil(t, m.TestFile)
	assert.True(t, m.TestFile.Pending)

	release()
	eventually(t, e, func(m view.Model) bool { return !m.Selecting && m.Selected == "b.test" }, "confirmed after release")
	assert.Equal(t, "b.test", st.SelectedFile())
}

func TestRejectedSelectionShowsDismissibleNotice(t *testing.T) {
	backend, st := clienttest.Local("a.test", "b.test")
	require.NoError(t, st.SetSelectedFile("a.test"))
	e := open(t, backend)
	eventually(t, e, view.Model.Ready, "ready")

	e.SelectFile("missing.test")
	m := eventually(t, e, func(m view.Model) bool { return !m.Selecting && len(m.Notices) == 1 }, "rejection surfaces")

	assert.Equal(t, "a.test", m.Selected, "the confirmed selection is restored")
	assert.Equal(t, errors.ErrCodeRemoteRejected, m.Notices[0].Code)
	assert.True(t, m.Notices[0].Dismissible)

	e.DismissError()
	assert.Empty(t, e.Model().Notices)
}

func TestLiveSummaryAndRunner(t *testing.T) {
	backend, st := clienttest.Local("a.test", "b.test")
	e := open(t, backend)
	eventually(t, e, func(m view.Model) bool {
		return m.Ready() && !m.Summary.Stale && !m.Runner.Stale
	}, "channels live")
	require.Eventually(t, func() bool {
		return st.Subscribers(store.TopicSummary) == 1 && st.Subscribers(store.TopicRunnerStatus) == 1
	}, wait, 5*time.Millisecond)

	require.NoError(t, passed(st, "a.test", 7))
	require.NoError(t, st.ApplyUpdate(store.Update{Type: store.UpdateRunner, Payload: store.RunnerChange{
		RunnerID: "default", Status: models.RunnerRunning, ActiveFile: "b.test",
	}}))

	m := eventually(t, e, func(m view.Model) bool {
		return row(m, "a.test").Passed == 7 && row(m, "b.test").Running
	}, "deltas applied")
	assert.True(t, m.Busy)
	assert.Equal(t, models.TestStatusPassed, row(m, "a.test").Status)
}

func TestFailedFetchRecoversOnRefresh(t *testing.T) {
	backend, _ := clienttest.Local("a.test")
	backend.Fail(clienttest.CallFetchWorkspace, fmt.Errorf("connection refused"))
	e := open(t, backend)

	m := e.Model()
	assert.True(t, m.Workspace.Loading)
	require.NotEmpty(t, m.Notices)
	assert.Equal(t, errors.ErrCodeFetchFailed, m.Notices[0].Code)

	backend.Fail(clienttest.CallFetchWorkspace, nil)
	require.NoError(t, e.RefreshFiles(context.Background()))
	m = e.Model()
	assert.False(t, m.Workspace.Loading)
	assert.Len(t, m.Files, 1)
}

func TestRefreshRetriesSelectedFile(t *testing.T) {
	backend, st := clienttest.Local("a.test")
	require.NoError(t, st.SetSelectedFile("a.test"))
	backend.Fail(clienttest.CallFetchSelectedFile, fmt.Errorf("timeout"))
	e := open(t, backend)
	assert.True(t, e.Model().SelectedFile.Loading)

	backend.Fail(clienttest.CallFetchSelectedFile, nil)
	require.NoError(t, e.RefreshFiles(context.Background()))
	m := e.Model()
	assert.False(t, m.SelectedFile.Loading)
	assert.Equal(t, "a.test", m.Selected)
}

func TestSearchOverlay(t *testing.T) {
	backend, _ := clienttest.Local("a.test", "b.test")
	e := open(t, backend)
	eventually(t, e, view.Model.Ready, "ready")

	e.OpenSearch()
	m := e.Model()
	assert.True(t, m.SearchOpen)
	assert.Equal(t, []string{"a.test", "b.test"}, m.SearchFiles)

	e.SelectFromSearch("b.test")
	eventually(t, e, func(m view.Model) bool { return !m.SearchOpen && m.Selected == "b.test" }, "search closes on success")

	e.OpenSearch()
	e.SelectFromSearch("gone.test")
	m = eventually(t, e, func(m view.Model) bool { return !m.Selecting }, "rejected")
	assert.True(t, m.SearchOpen, "a rejected search selection keeps the overlay open")

	e.CloseSearch()
	assert.False(t, e.Model().SearchOpen)
}

func TestWorkspaceWatchRefreshesListing(t *testing.T) {
	st := clienttest.NewStore("a.test")
	local := client.NewLocalClient(st, nil)
	e := open(t, local, WithWorkspaceWatch(local))
	eventually(t, e, view.Model.Ready, "ready")
	require.Eventually(t, func() bool { return st.Subscribers(store.TopicWorkspace) == 1 }, wait, 5*time.Millisecond)

	require.NoError(t, st.ApplyUpdate(store.Update{Type: store.UpdateWorkspace, Payload: models.WorkspaceListing{
		ProjectRoot: "/project",
		Files:       []models.FileEntry{{Path: "a.test"}, {Path: "new.test"}},
	}}))
	eventually(t, e, func(m view.Model) bool { return len(m.Files) == 2 }, "listing refetched")
}

func TestRunEndBeforeSubscribeIsNotLost(t *testing.T) {
	backend, st := clienttest.Local("a.test")
	require.NoError(t, st.ApplyUpdate(store.Update{Type: store.UpdateRunner, Payload: store.RunnerChange{
		RunnerID: "r", Status: models.RunnerRunning, ActiveFile: "a.test",
	}}))

	release := backend.Hold(clienttest.CallSubscribeRunnerStatus)
	e := open(t, backend)
	eventually(t, e, func(m view.Model) bool { return !m.Runner.Loading && m.Busy }, "runner snapshot installed")

	// The run ends while the subscription is not yet registered, so the
	// delta is broadcast to nobody.
	require.NoError(t, st.ApplyUpdate(store.Update{Type: store.UpdateRunner, Payload: store.RunnerChange{
		RunnerID: "r", Status: models.RunnerSucceeded,
	}}))
	release()

	m := eventually(t, e, func(m view.Model) bool { return !m.Busy && !m.Runner.Stale }, "run end reaches the view")
	assert.False(t, row(m, "a.test").Running)
	assert.True(t, e.runner.Live())
	assert.Equal(t, uint64(2), e.runner.Snapshot().Seq)
}

func TestSelectionWatchFollowsOtherClients(t *testing.T) {
	backend, st := clienttest.Local("a.test", "b.test")
	local := client.NewLocalClient(st, nil)
	e := open(t, backend, WithSelectionWatch(local))
	eventually(t, e, view.Model.Ready, "ready")
	require.Eventually(t, func() bool { return st.Subscribers(store.TopicSelectedFile) == 1 }, wait, 5*time.Millisecond)

	// Another process runs "testwatch select b.test".
	require.NoError(t, st.SetSelectedFile("b.test"))
	m := eventually(t, e, func(m view.Model) bool { return m.Selected == "b.test" }, "external selection adopted")
	require.NotNil(t, m.TestFile)
	assert.Equal(t, "b.test", m.TestFile.Path)

	// The selected file leaves the workspace and the daemon clears it.
	require.NoError(t, st.ApplyUpdate(store.Update{Type: store.UpdateWorkspace, Payload: models.WorkspaceListing{
		ProjectRoot: "/project",
		Files:       []models.FileEntry{{Path: "a.test"}},
	}}))
	m = eventually(t, e, func(m view.Model) bool { return m.Selected == "" }, "cleared selection adopted")
	assert.Nil(t, m.TestFile)
}

func TestSelectionWatchYieldsToPendingIntent(t *testing.T) {
	backend, st := clienttest.Local("a.test", "b.test")
	local := client.NewLocalClient(st, nil)
	e := open(t, backend, WithSelectionWatch(local))
	eventually(t, e, view.Model.Ready, "ready")
	require.Eventually(t, func() bool { return st.Subscribers(store.TopicSelectedFile) == 1 }, wait, 5*time.Millisecond)

	release := backend.Hold(clienttest.CallSetSelectedFile)
	e.SelectFile("a.test")
	fetches := backend.Calls(clienttest.CallFetchSelectedFile)
	require.NoError(t, st.SetSelectedFile("b.test"))
	require.Eventually(t, func() bool {
		return backend.Calls(clienttest.CallFetchSelectedFile) > fetches
	}, wait, 5*time.Millisecond, "external change refetched")

	m := e.Model()
	assert.True(t, m.Selecting)
	assert.Equal(t, "a.test", m.Selected, "the pending intent is not overridden")

	release()
	eventually(t, e, func(m view.Model) bool { return !m.Selecting && m.Selected == "a.test" }, "own intent lands")
	assert.Equal(t, "a.test", st.SelectedFile())
}

func TestChangesAreSignalled(t *testing.T) {
	backend, _ := clienttest.Local("a.test")
	e := open(t, backend)

	select {
	case <-e.Changes():
	case <-time.After(wait):
		t.Fatal("no change signalled")
	}
}

func TestWaitReady(t *testing.T) {
	backend, _ := clienttest.Local("a.test")
	e := open(t, backend)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	m, err := e.WaitReady(ctx)
	require.NoError(t, err)
	assert.True(t, m.Ready())
}

func TestWaitReadyStopsAtDeadline(t *testing.T) {
	backend, _ := clienttest.Local("a.test")
	backend.Fail(clienttest.CallFetchWorkspace, fmt.Errorf("connection refused"))
	e := open(t, backend)

	// Long enough for several polls.
	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	m, err := e.WaitReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, m.Ready())
	assert.True(t, m.Workspace.Loading)
}

func TestCloseTearsEverythingDown(t *testing.T) {
	backend, st := clienttest.Local("a.test")
	e := New(backend, WithBackOff(fastBackOff))
	require.NoError(t, e.Open(context.Background()))
	eventually(t, e, view.Model.Ready, "ready")

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	for range e.Changes() {
	}
	assert.Zero(t, e.SelectFile("a.test"))
	assert.True(t, errors.Is(e.RefreshFiles(context.Background()), errors.ErrCodeClosed))
	assert.True(t, errors.Is(e.Open(context.Background()), errors.ErrCodeClosed))

	m := e.Model()
	assert.True(t, errors.Is(m.Summary.Err, errors.ErrCodeClosed))
	assert.True(t, errors.Is(m.Runner.Err, errors.ErrCodeClosed))
	assert.Eventually(t, func() bool {
		return st.Subscribers(store.TopicSummary) == 0 && st.Subscribers(store.TopicRunnerStatus) == 0
	}, wait, 5*time.Millisecond)
}
