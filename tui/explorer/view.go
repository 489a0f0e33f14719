package explorer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/testwatch/tui/theme"
	"github.com/grovetools/testwatch/tui/utils/scrollbar"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// View renders the UI.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	width, height := m.size()
	t := m.theme

	var top []string
	top = append(top, headerLine(t, m.view, width))
	busy := ""
	if m.view.Busy {
		busy = m.spinner.View()
	}
	totals := totalsLine(t, m.view, busy)
	if m.refreshing {
		totals += "  " + m.spinner.View() + t.Muted.Render(" refreshing")
	}
	top = append(top, totals)
	top = append(top, noticeLines(t, m.view.Notices, true)...)
	top = append(top, "")

	footer := m.help.View(m.keys)

	var detail string
	if m.view.TestFile != nil && !m.view.SearchOpen {
		detail = detailPane(t, m.view.TestFile, width, m.spinner.View())
	}

	listHeight := height - len(top) - lipgloss.Height(footer) - 1
	if detail != "" {
		listHeight -= lipgloss.Height(detail)
	}
	if listHeight < 3 {
		listHeight = 3
	}

	var list string
	if m.view.SearchOpen {
		list = m.searchView(width, listHeight)
	} else {
		m.scroll(listHeight)
		list = fileList(t, m.view, width-1, m.cursor, m.scrollOffset, m.scrollOffset+listHeight, m.spinner.View())
		if len(m.view.Files) > listHeight {
			list = scrollbar.Overlay(list, width, len(m.view.Files), m.scrollOffset)
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(top, "\n"))
	b.WriteString("\n")
	b.WriteString(list)
	if detail != "" {
		b.WriteString(detail)
		b.WriteString("\n")
	}
	b.WriteString(footer)
	return b.String()
}

func (m *Model) searchView(width, height int) string {
	t := m.theme
	var b strings.Builder
	b.WriteString(m.search.View())
	b.WriteString("\n")

	if m.view.Workspace.Loading {
		b.WriteString(t.Muted.Render("loading workspace"))
		b.WriteString("\n")
		return b.String()
	}

	matches := filterPaths(m.view.SearchFiles, m.search.Value())
	if len(matches) == 0 {
		b.WriteString(t.Muted.Render("no matching files"))
		b.WriteString("\n")
		return b.String()
	}

	m.scroll(height - 2)
	end := m.scrollOffset + height - 2
	if end > len(matches) {
		end = len(matches)
	}
	for i := m.scrollOffset; i < end; i++ {
		marker := "  "
		name := truncateLeft(matches[i], width-4)
		if i == m.cursor {
			marker = t.Cursor.Render(theme.IconArrow) + " "
			name = t.SelectedRow.Render(name)
		}
		if matches[i] == m.view.Selected && m.view.Selecting {
			name += " " + m.spinner.View()
		}
		b.WriteString(marker + name + "\n")
	}
	b.WriteString(t.Muted.Render(fmt.Sprintf("%d of %d files", len(matches), len(m.view.SearchFiles))))
	b.WriteString("\n")
	return b.String()
}

// scroll keeps the cursor inside a window of n rows.
func (m *Model) scroll(n int) {
	if n < 1 {
		n = 1
	}
	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}
	if m.cursor >= m.scrollOffset+n {
		m.scrollOffset = m.cursor - n + 1
	}
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m *Model) size() (int, int) {
	w, h := m.width, m.height
	if w <= 0 {
		w = defaultWidth
	}
	if h <= 0 {
		h = defaultHeight
	}
	return w, h
}
