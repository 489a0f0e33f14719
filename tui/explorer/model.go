// Package explorer is the terminal UI of the workspace view: a file list with
// live test status, a detail pane for the selected file and a search overlay.
package explorer

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/view"
	"github.com/grovetools/testwatch/tui/theme"
	"github.com/sirupsen/logrus"
)

// Explorer is the workspace view the UI drives.
type Explorer interface {
	Model() view.Model
	Changes() <-chan struct{}
	SelectFile(path string) uint64
	SelectFromSearch(path string) uint64
	OpenSearch()
	CloseSearch()
	DismissError()
	RefreshFiles(ctx context.Context) error
}

// Model represents the state of the explorer TUI.
type Model struct {
	ex      Explorer
	changes <-chan struct{}
	view    view.Model
	theme   *theme.Theme
	logger  *logrus.Entry

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	search  textinput.Model

	cursor       int // index into the visible list: files, or search results
	scrollOffset int
	width        int
	height       int
	refreshing   bool
	quitting     bool
}

// New creates the UI model for ex.
func New(ex Explorer) *Model {
	t := theme.DefaultTheme

	search := textinput.New()
	search.Prompt = theme.IconSearch + " "
	search.Placeholder = "type to filter files"
	search.PromptStyle = t.Highlight
	search.PlaceholderStyle = t.Placeholder
	search.TextStyle = t.Input

	return &Model{
		ex:      ex,
		changes: ex.Changes(),
		view:    ex.Model(),
		theme:   t,
		logger:  logging.NewLogger("tui"),
		keys:    DefaultKeyMap,
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(t.Info)),
		search:  search,
	}
}

// changedMsg reports that the explorer model changed.
type changedMsg struct{}

// closedMsg reports that the explorer was closed underneath the UI.
type closedMsg struct{}

// refreshedMsg ends a file refresh. Failures also surface as workspace
// notices.
type refreshedMsg struct{ err error }

// waitForChange blocks on the explorer's change signal.
func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return closedMsg{}
		}
		return changedMsg{}
	}
}

// Init is the first command that will be executed.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForChange(m.changes), m.spinner.Tick)
}

// Quitting reports whether the user asked to leave.
func (m *Model) Quitting() bool { return m.quitting }
