package explorer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/testwatch/pkg/models"
	"github.com/grovetools/testwatch/pkg/view"
)

type fakeExplorer struct {
	model    view.Model
	changes  chan struct{}
	selected []string
	searched []string
	refreshs int
	dismiss  int
	failWith error
}

func newFake(files ...string) *fakeExplorer {
	rows := make([]view.FileRow, len(files))
	for i, f := range files {
		rows[i] = view.FileRow{Path: f}
	}
	return &fakeExplorer{
		changes: make(chan struct{}, 1),
		model: view.Model{
			ProjectRoot: "/project",
			Files:       rows,
			Totals:      &models.Totals{Files: len(files)},
		},
	}
}

func (f *fakeExplorer) Model() view.Model { return f.model }
func (f *fakeExplorer) Changes() <-chan struct{} { return f.changes }
func (f *fakeExplorer) OpenSearch() { f.model.SearchOpen = true; f.model.SearchFiles = f.paths() }
func (f *fakeExplorer) CloseSearch() { f.model.SearchOpen = false; f.model.SearchFiles = nil }
func (f *fakeExplorer) DismissError() { f.dismiss++ }
func (f *fakeExplorer) RefreshFiles(context.Context) error {
	f.refreshs++
	return f.failWith
}

func (f *fakeExplorer) SelectFile(path string) uint64 {
	f.selected = append(f.selected, path)
	f.model.Selected = path
	return uint64(len(f.selected))
}

func (f *fakeExplorer) SelectFromSearch(path string) uint64 {
	f.searched = append(f.searched, path)
	f.model.Selected = path
	return uint64(len(f.searched))
}

func (f *fakeExplorer) paths() []string {
	out := make([]string, len(f.model.Files))
	for i, r := range f.model.Files {
		out[i] = r.Path
	}
	return out
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func send(m *Model, msgs ...tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	for _, msg := range msgs {
		_, cmd = m.Update(msg)
	}
	return cmd
}

func TestNavigateAndSelect(t *testing.T) {
	fake := newFake("a_test.go", "b_test.go", "c_test.go")
	m := New(fake)

	send(m, runes("j"), runes("j"), runes("j"))
	assert.Equal(t, 2, m.cursor, "cursor stops at the last file")

	send(m, runes("k"), enter)
	assert.Equal(t, []string{"b_test.go"}, fake.selected)

	send(m, runes("g"))
	assert.Equal(t, 0, m.cursor)
	send(m, runes("G"))
	assert.Equal(t, 2, m.cursor)
}

func TestSearchFiltersAndSelects(t *testing.T) {
	fake := newFake("pkg/a_test.go", "pkg/b_test.go", "cmd/main_test.go")
	m := New(fake)

	send(m, runes("/"))
	require.True(t, m.view.SearchOpen)
	assert.True(t, m.search.Focused())

	send(m, runes("c"), runes("m"), runes("d"))
	assert.Equal(t, []string{"cmd/main_test.go"}, m.visible())

	send(m, enter)
	assert.Equal(t, []string{"cmd/main_test.go"}, fake.searched)
	assert.Empty(t, fake.selected)
	assert.True(t, m.view.SearchOpen, "search stays open until the selection lands")

	fake.CloseSearch()
	send(m, changedMsg{})
	assert.False(t, m.view.SearchOpen)
	assert.Equal(t, "", m.search.Value())
	assert.Equal(t, 2, m.cursor, "cursor moves to the selected file")
}

func TestSearchEscCloses(t *testing.T) {
	fake := newFake("a_test.go")
	m := New(fake)

	send(m, runes("/"), runes("q"))
	assert.False(t, m.quitting, "q is typed into the search")
	assert.Equal(t, "q", m.search.Value())

	send(m, esc)
	assert.False(t, m.view.SearchOpen)
	assert.False(t, m.search.Focused())
}

func TestFilterPaths(t *testing.T) {
	paths := []string{"pkg/Store_test.go", "pkg/view_test.go", "cmd/store.go"}
	tests := []struct {
		query string
		want  []string
	}{
		{"", paths},
		{"store", []string{"pkg/Store_test.go", "cmd/store.go"}},
		{"store test", []string{"pkg/Store_test.go"}},
		{"nothing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, filterPaths(paths, tt.query))
		})
	}
}

func TestQuitAndClose(t *testing.T) {
	m := New(newFake("a_test.go"))
	cmd := send(m, runes("q"))
	require.NotNil(t, cmd)
	assert.True(t, m.Quitting())
	assert.IsType(t, tea.QuitMsg{}, cmd())

	m = New(newFake("a_test.go"))
	send(m, closedMsg{})
	assert.True(t, m.Quitting())
}

func TestWaitForChange(t *testing.T) {
	ch := make(chan struct{}, 1)
	ch <- struct{}{}
	assert.Equal(t, changedMsg{}, waitForChange(ch)())
	close(ch)
	assert.Equal(t, closedMsg{}, waitForChange(ch)())
}

func TestRefreshAndDismiss(t *testing.T) {
	fake := newFake("a_test.go")
	m := New(fake)

	cmd := send(m, runes("r"))
	require.NotNil(t, cmd)
	assert.True(t, m.refreshing)
	assert.Nil(t, send(m, runes("r")), "refresh is not stacked")

	send(m, cmd())
	assert.False(t, m.refreshing)
	assert.Equal(t, 1, fake.refreshs)

	send(m, runes("x"))
	assert.Equal(t, 1, fake.dismiss)
}

func TestRefreshFailureIsLogged(t *testing.T) {
	fake := newFake("a_test.go")
	fake.failWith = fmt.Errorf("connection refused")
	m := New(fake)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	m.logger = logrus.NewEntry(logger)

	cmd := send(m, runes("r"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, refreshedMsg{err: fake.failWith}, msg)

	send(m, msg)
	assert.False(t, m.refreshing)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, fake.failWith, hook.LastEntry().Data[logrus.ErrorKey])
}

func TestViewRendersFilesAndNotices(t *testing.T) {
	fake := newFake("a_test.go", "b_test.go")
	fake.model.Files[1].Status = models.TestStatusFailed
	fake.model.Files[1].Failed = 2
	fake.model.Notices = []view.Notice{{Source: view.SourceSelection, Message: "rejected", Dismissible: true}}
	m := New(fake)
	send(m, tea.WindowSizeMsg{Width: 100, Height: 30})

	out := m.View()
	assert.Contains(t, out, "a_test.go")
	assert.Contains(t, out, "2 failed")
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "x to dismiss")
}

func TestRenderStatus(t *testing.T) {
	m := view.Model{
		ProjectRoot: "/project",
		Files: []view.FileRow{
			{Path: "a_test.go", Status: models.TestStatusPassed, Passed: 3},
			{Path: "b_test.go", Selected: true},
		},
		Selected: "b_test.go",
		TestFile: &view.TestFile{ProjectRoot: "/project", Path: "b_test.go"},
		Totals:   &models.Totals{Files: 1, Passed: 3},
	}
	out := RenderStatus(m, 80)
	assert.Contains(t, out, "/project")
	assert.Contains(t, out, "3 passed")
	assert.Contains(t, out, "no results yet")
	assert.NotContains(t, out, "dismiss")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "…/b/c.go", truncateLeft("a/very/long/b/c.go", 8))
	assert.Equal(t, "short", truncateLeft("short", 8))
	assert.Equal(t, "abcdefg…", truncateRight("abcdefghij", 8))
	assert.True(t, strings.HasSuffix(truncateLeft("x", 0), "x"))
}
