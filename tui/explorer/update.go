package explorer

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const refreshTimeout = 30 * time.Second

var (
	searchUp   = key.NewBinding(key.WithKeys("up", "ctrl+p"))
	searchDown = key.NewBinding(key.WithKeys("down", "ctrl+n"))
)

// Update handles messages and updates the model accordingly.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case changedMsg:
		m.sync()
		return m, waitForChange(m.changes)

	case closedMsg:
		m.quitting = true
		return m, tea.Quit

	case refreshedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.logger.WithError(msg.err).Debug("File refresh failed")
		}
		m.sync()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.search.Focused() {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQuit) {
		m.quitting = true
		return m, tea.Quit
	}
	if m.help.ShowAll {
		m.help.ShowAll = false
		return m, nil
	}
	if m.view.SearchOpen {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)

	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)

	case key.Matches(msg, m.keys.Top):
		m.cursor = 0

	case key.Matches(msg, m.keys.Bottom):
		m.cursor = len(m.visible()) - 1
		m.clampCursor()

	case key.Matches(msg, m.keys.Select):
		if path := m.current(); path != "" {
			m.ex.SelectFile(path)
			m.sync()
		}

	case key.Matches(msg, m.keys.Search):
		m.ex.OpenSearch()
		m.search.Reset()
		m.sync()
		m.cursor, m.scrollOffset = 0, 0
		return m, m.search.Focus()

	case key.Matches(msg, m.keys.Refresh):
		if !m.refreshing {
			m.refreshing = true
			return m, m.refresh()
		}

	case key.Matches(msg, m.keys.Dismiss):
		m.ex.DismissError()
		m.sync()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = true
	}
	return m, nil
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Close):
		m.ex.CloseSearch()
		m.sync()
		return m, nil

	case key.Matches(msg, m.keys.Select):
		// Search stays open until the selection is confirmed.
		if path := m.current(); path != "" {
			m.ex.SelectFromSearch(path)
			m.sync()
		}
		return m, nil

	case key.Matches(msg, searchUp):
		m.moveCursor(-1)
		return m, nil

	case key.Matches(msg, searchDown):
		m.moveCursor(1)
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.cursor, m.scrollOffset = 0, 0
	return m, cmd
}

func (m *Model) refresh() tea.Cmd {
	ex := m.ex
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return refreshedMsg{err: ex.RefreshFiles(ctx)}
	}
}

// sync pulls the current explorer model.
func (m *Model) sync() {
	wasOpen := m.view.SearchOpen
	hadFiles := m.view.Files != nil
	m.view = m.ex.Model()

	if wasOpen && !m.view.SearchOpen {
		m.search.Blur()
		m.search.Reset()
		m.cursor = m.indexOf(m.view.Selected)
	}
	if !hadFiles && m.view.Files != nil && m.cursor == 0 {
		m.cursor = m.indexOf(m.view.Selected)
	}
	m.clampCursor()
}

// visible returns the paths of the list currently shown.
func (m *Model) visible() []string {
	if m.view.SearchOpen {
		return filterPaths(m.view.SearchFiles, m.search.Value())
	}
	paths := make([]string, len(m.view.Files))
	for i, f := range m.view.Files {
		paths[i] = f.Path
	}
	return paths
}

func (m *Model) current() string {
	paths := m.visible()
	if m.cursor < 0 || m.cursor >= len(paths) {
		return ""
	}
	return paths[m.cursor]
}

func (m *Model) indexOf(path string) int {
	if path == "" {
		return 0
	}
	for i, p := range m.visible() {
		if p == path {
			return i
		}
	}
	return 0
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	n := len(m.visible())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// filterPaths keeps the paths containing every word of query, ignoring case.
func filterPaths(paths []string, query string) []string {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return paths
	}
	var out []string
	for _, p := range paths {
		lower := strings.ToLower(p)
		match := true
		for _, w := range words {
			if !strings.Contains(lower, w) {
				match = false
				break
			}
		}
		if match {
			out = append(out, p)
		}
	}
	return out
}
