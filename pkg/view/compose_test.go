package view

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/pkg/channel"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/grovetools/testwatch/pkg/selection"
	"github.com/grovetools/testwatch/pkg/snapshot"
)

func loadedWorkspace() snapshot.Entry[models.WorkspaceListing] {
	return snapshot.Entry[models.WorkspaceListing]{
		Loaded: true,
		Value: models.WorkspaceListing{
			ProjectRoot: "/project",
			Files: []models.FileEntry{
				{Path: "a.test"},
				{Path: "b.test", Metadata: map[string]interface{}{"suite": "unit"}},
			},
		},
	}
}

func loadedSummary() channel.Snapshot[models.TestSummary] {
	return channel.Snapshot[models.TestSummary]{
		Label: "summary",
		Ready: true,
		Live:  true,
		Value: models.TestSummary{Seq: 3, Files: map[string]models.FileSummary{
			"a.test": {Path: "a.test", Status: models.TestStatusPassed, Passed: 4},
			"b.test": {Path: "b.test", Status: models.TestStatusFailed, Passed: 1, Failed: 2},
		}},
	}
}

func loadedRunner() channel.Snapshot[models.RunnerStatus] {
	return channel.Snapshot[models.RunnerStatus]{
		Label: "runner status",
		Ready: true,
		Live:  true,
		Value: models.RunnerStatus{Seq: 1, Runners: map[string]models.RunnerEntry{
			"r1": {Status: models.RunnerRunning, ActiveFile: "b.test"},
		}},
	}
}

func TestComposeEveryLoadingCombination(t *testing.T) {
	for mask := 0; mask < 16; mask++ {
		wsLoaded := mask&1 != 0
		selLoaded := mask&2 != 0
		sumLoaded := mask&4 != 0
		runLoaded := mask&8 != 0

		t.Run(fmt.Sprintf("ws=%t sel=%t sum=%t run=%t", wsLoaded, selLoaded, sumLoaded, runLoaded), func(t *testing.T) {
			in := Input{Selection: selection.State{SelectedFile: "b.test"}}
			if wsLoaded {
				in.Workspace = loadedWorkspace()
			}
			if selLoaded {
				in.SelectedFile = snapshot.Entry[string]{Loaded: true, Value: "b.test"}
			}
			if sumLoaded {
				in.Summary = loadedSummary()
			}
			if runLoaded {
				in.Runner = loadedRunner()
			}

			m := Compose(in)

			assert.Equal(t, !wsLoaded, m.Workspace.Loading)
			assert.Equal(t, !selLoaded, m.SelectedFile.Loading)
			assert.Equal(t, !sumLoaded, m.Summary.Loading)
			assert.Equal(t, !runLoaded, m.Runner.Loading)
			assert.Equal(t, mask == 15, m.Ready())
			assert.Equal(t, "b.test", m.Selected)

			if !wsLoaded {
				assert.Empty(t, m.Files)
				assert.Nil(t, m.TestFile, "no test file without a workspace")
			} else {
				require.Len(t, m.Files, 2)
				require.NotNil(t, m.TestFile)
				assert.Equal(t, "/project", m.TestFile.ProjectRoot)
				assert.True(t, m.Files[1].Selected)
			}

			if sumLoaded {
				require.NotNil(t, m.Totals)
				assert.Equal(t, 5, m.Totals.Passed)
			} else {
				assert.Nil(t, m.Totals)
			}

			if wsLoaded {
				b := m.Files[1]
				assert.Equal(t, runLoaded, b.Running)
				assert.Equal(t, runLoaded, m.TestFile.Running)
				if sumLoaded {
					assert.Equal(t, models.TestStatusFailed, b.Status)
					require.NotNil(t, m.TestFile.Summary)
					assert.Equal(t, 2, m.TestFile.Summary.Failed)
				} else {
					assert.Equal(t, models.TestStatusUnknown, b.Status)
					assert.Nil(t, m.TestFile.Summary)
				}
			}
			assert.Empty(t, m.Notices)
		})
	}
}

func TestComposeNoSelection(t *testing.T) {
	m := Compose(Input{
		Workspace: loadedWorkspace(),
		Summary:   loadedSummary(),
		Runner:    loadedRunner(),
	})
	assert.Nil(t, m.TestFile)
	for _, row := range m.Files {
		assert.False(t, row.Selected)
	}
	assert.True(t, m.Busy)
}

func TestComposePendingSelection(t *testing.T) {
	m := Compose(Input{
		Selection: selection.State{
			Phase:        selection.Selecting,
			SelectedFile: "a.test",
			PendingFile:  "b.test",
			Intent:       2,
		},
		Workspace: loadedWorkspace(),
	})

	assert.True(t, m.Selecting)
	assert.Equal(t, "b.test", m.Selected)
	assert.False(t, m.Files[0].Selected)
	assert.True(t, m.Files[1].Pending)
	require.NotNil(t, m.TestFile)
	assert.True(t, m.TestFile.Pending)
	assert.Equal(t, map[string]interface{}{"suite": "unit"}, m.TestFile.Metadata)
}

func TestComposeSearch(t *testing.T) {
	in := Input{Selection: selection.State{SearchOpen: true}}

	m := Compose(in)
	assert.True(t, m.SearchOpen)
	assert.Empty(t, m.SearchFiles, "search has nothing to offer before the workspace loads")

	in.Workspace = loadedWorkspace()
	m = Compose(in)
	assert.Equal(t, []string{"a.test", "b.test"}, m.SearchFiles)

	in.Selection.SearchOpen = false
	assert.Empty(t, Compose(in).SearchFiles)
}

func TestComposeStaleChannelKeepsValue(t *testing.T) {
	summary := loadedSummary()
	summary.Live = false
	summary.Err = errors.StreamInterrupted("summary", nil)

	m := Compose(Input{Workspace: loadedWorkspace(), Summary: summary})
	assert.False(t, m.Summary.Loading)
	assert.True(t, m.Summary.Stale)
	require.NotNil(t, m.Totals, "the last value stays visible while resyncing")

	require.Len(t, m.Notices, 1)
	assert.Equal(t, SourceSummary, m.Notices[0].Source)
	assert.Equal(t, errors.ErrCodeStreamInterrupted, m.Notices[0].Code)
	assert.False(t, m.Notices[0].Dismissible)
}

func TestComposeRecoveredChannelHidesOldError(t *testing.T) {
	runner := loadedRunner()
	runner.Err = errors.StreamInterrupted("runner status", nil)

	m := Compose(Input{Runner: runner})
	assert.False(t, m.Runner.Stale)
	assert.Empty(t, m.Notices)
}

func TestComposeFailedInitialFetch(t *testing.T) {
	m := Compose(Input{
		Workspace: snapshot.Entry[models.WorkspaceListing]{Err: errors.FetchFailed("workspace", fmt.Errorf("refused"))},
		Summary:   loadedSummary(),
	})
	assert.True(t, m.Workspace.Loading)
	assert.NotNil(t, m.Totals, "summary displays while the workspace is still loading")
	require.Len(t, m.Notices, 1)
	assert.Equal(t, errors.ErrCodeFetchFailed, m.Notices[0].Code)
}

func TestComposeFailedRefetchKeepsListing(t *testing.T) {
	ws := loadedWorkspace()
	ws.Err = errors.FetchFailed("workspace", fmt.Errorf("timeout"))

	m := Compose(Input{Workspace: ws})
	assert.True(t, m.Workspace.Stale)
	assert.Len(t, m.Files, 2)
}

func TestComposeSelectionErrorIsDismissible(t *testing.T) {
	m := Compose(Input{
		Selection: selection.State{
			SelectedFile: "a.test",
			Err:          errors.RemoteRejected("set selected file", fmt.Errorf("nope")),
		},
		Runner: channel.Snapshot[models.RunnerStatus]{Err: errors.FetchFailed("runner status", fmt.Errorf("refused"))},
	})

	require.Len(t, m.Notices, 2)
	assert.Equal(t, SourceSelection, m.Notices[0].Source)
	assert.True(t, m.Notices[0].Dismissible)
	assert.Equal(t, errors.ErrCodeRemoteRejected, m.Notices[0].Code)
	assert.Equal(t, SourceRunner, m.Notices[1].Source)
}

func TestComposeClosedChannel(t *testing.T) {
	summary := loadedSummary()
	summary.Closed = true
	summary.Live = false

	m := Compose(Input{Summary: summary})
	assert.Nil(t, m.Totals)
	assert.True(t, errors.Is(m.Summary.Err, errors.ErrCodeClosed))
}

func TestComposeDoesNotMutateInput(t *testing.T) {
	in := Input{
		Selection: selection.State{SelectedFile: "a.test"},
		Workspace: loadedWorkspace(),
		Summary:   loadedSummary(),
		Runner:    loadedRunner(),
	}
	first := Compose(in)
	first.TestFile.Summary.Passed = 99

	assert.Equal(t, 4, in.Summary.Value.Files["a.test"].Passed)
	assert.Equal(t, 4, Compose(in).TestFile.Summary.Passed)
}
