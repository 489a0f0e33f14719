package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/pkg/models"
)

func workspace(files ...string) Update {
	l := models.WorkspaceListing{ProjectRoot: "/project"}
	for _, f := range files {
		l.Files = append(l.Files, models.FileEntry{Path: f})
	}
	return Update{Type: UpdateWorkspace, Source: "test", Payload: l}
}

func passed(path string, n int) Update {
	return Update{Type: UpdateSummary, Source: "test", Payload: SummaryChange{
		Path:    path,
		Summary: &models.FileSummary{Path: path, Status: models.TestStatusPassed, Passed: n},
	}}
}

func TestSetSelectedFile(t *testing.T) {
	st := New()
	require.NoError(t, st.ApplyUpdate(workspace("a.test", "b.test")))

	require.NoError(t, st.SetSelectedFile("a.test"))
	assert.Equal(t, "a.test", st.SelectedFile())

	err := st.SetSelectedFile("missing.test")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, "a.test", st.SelectedFile(), "a rejected selection leaves the state alone")

	require.NoError(t, st.SetSelectedFile(""))
	assert.Empty(t, st.SelectedFile())
}

func TestWorkspaceUpdateClearsVanishedSelection(t *testing.T) {
	st := New()
	require.NoError(t, st.ApplyUpdate(workspace("a.test", "b.test")))
	require.NoError(t, st.SetSelectedFile("b.test"))

	sel := st.Subscribe(TopicSelectedFile)
	require.NoError(t, st.ApplyUpdate(workspace("a.test")))

	assert.Empty(t, st.SelectedFile())
	ev := <-sel
	require.NotNil(t, ev.SelectedFile)
	assert.Empty(t, *ev.SelectedFile)
}

func TestSummaryUpdatesAreSequenced(t *testing.T) {
	st := New()
	ch := st.Subscribe(TopicSummary)
	defer st.Unsubscribe(TopicSummary, ch)

	require.NoError(t, st.ApplyUpdate(passed("a.test", 1)))
	require.NoError(t, st.ApplyUpdate(passed("b.test", 2)))
	require.NoError(t, st.ApplyUpdate(Update{Type: UpdateSummary, Payload: SummaryChange{Path: "a.test"}}))

	for want := uint64(1); want <= 3; want++ {
		ev := <-ch
		assert.Equal(t, TopicSummary, ev.Topic)
		require.NotNil(t, ev.Summary)
		assert.Equal(t, want, ev.Summary.Seq)
	}

	summary := st.Summary()
	assert.Equal(t, uint64(3), summary.Seq)
	assert.Equal(t, []string{"b.test"}, keys(summary.Files))
}

func TestSnapshotPlusDeltasMatchesState(t *testing.T) {
	st := New()
	require.NoError(t, st.ApplyUpdate(passed("a.test", 1)))
	snap := st.Summary()

	ch := st.Subscribe(TopicSummary)
	require.NoError(t, st.ApplyUpdate(passed("b.test", 2)))
	require.NoError(t, st.ApplyUpdate(passed("a.test", 5)))

	for i := 0; i < 2; i++ {
		ev := <-ch
		next, err := models.ApplySummaryDelta(snap, *ev.Summary)
		require.NoError(t, err)
		snap = next
	}
	assert.Equal(t, st.Summary(), snap)
}

func TestMalformedUpdateIsRejected(t *testing.T) {
	st := New()
	ch := st.Subscribe(TopicRunnerStatus)

	err := st.ApplyUpdate(Update{Type: UpdateRunner, Payload: RunnerChange{RunnerID: "r1", Status: "exploded"}})
	assert.True(t, errors.Is(err, errors.ErrCodeMalformedEvent))
	assert.Zero(t, st.Runner().Seq, "no sequence number is consumed")
	assert.Empty(t, ch)

	err = st.ApplyUpdate(Update{Type: UpdateRunner, Payload: "not a change"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	err = st.ApplyUpdate(Update{Type: "bogus"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestRunnerUpdates(t *testing.T) {
	st := New()
	require.NoError(t, st.ApplyUpdate(Update{Type: UpdateRunner, Payload: RunnerChange{
		RunnerID: "r1", Status: models.RunnerRunning, ActiveFile: "a.test",
	}}))
	assert.True(t, st.Runner().IsRunning("a.test"))

	require.NoError(t, st.ApplyUpdate(Update{Type: UpdateRunner, Payload: RunnerChange{RunnerID: "r1", Removed: true}}))
	r := st.Runner()
	assert.Empty(t, r.Runners)
	assert.Equal(t, uint64(2), r.Seq)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	st := New()
	ch := st.Subscribe(TopicSummary)

	for i := 1; i <= 150; i++ {
		require.NoError(t, st.ApplyUpdate(passed("a.test", i)))
	}
	assert.Len(t, ch, 100)
	assert.Equal(t, uint64(150), st.Summary().Seq)
}

func TestUnsubscribe(t *testing.T) {
	st := New()
	ch := st.Subscribe(TopicSummary)
	assert.Equal(t, 1, st.Subscribers(TopicSummary))

	st.Unsubscribe(TopicSummary, ch)
	st.Unsubscribe(TopicSummary, ch)
	assert.Zero(t, st.Subscribers(TopicSummary))

	_, open := <-ch
	assert.False(t, open)
}

func TestGetReturnsCopies(t *testing.T) {
	st := New()
	require.NoError(t, st.ApplyUpdate(workspace("a.test")))
	require.NoError(t, st.ApplyUpdate(passed("a.test", 1)))

	state := st.Get()
	state.Workspace.Files[0].Path = "mutated"
	delete(state.Summary.Files, "a.test")

	assert.True(t, st.Workspace().Contains("a.test"))
	assert.Contains(t, st.Summary().Files, "a.test")
}

func TestParseTopic(t *testing.T) {
	topic, ok := ParseTopic("runner-status")
	assert.True(t, ok)
	assert.Equal(t, TopicRunnerStatus, topic)

	_, ok = ParseTopic("sessions")
	assert.False(t, ok)
}

func keys(m map[string]models.FileSummary) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
