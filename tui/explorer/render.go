package explorer

import (
	"fmt"
	"path"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/grovetools/testwatch/pkg/view"
	"github.com/grovetools/testwatch/tui/theme"
)

// RenderStatus renders the whole model as static text for non-interactive
// output.
func RenderStatus(m view.Model, width int) string {
	t := theme.DefaultTheme
	var b strings.Builder

	b.WriteString(headerLine(t, m, width))
	b.WriteString("\n")
	b.WriteString(totalsLine(t, m, ""))
	b.WriteString("\n")
	for _, line := range noticeLines(t, m.Notices, false) {
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(fileList(t, m, width, -1, 0, len(m.Files), IconPendingStatic))
	if m.TestFile != nil {
		b.WriteString("\n")
		b.WriteString(detailPane(t, m.TestFile, width, IconPendingStatic))
		b.WriteString("\n")
	}
	return b.String()
}

// IconPendingStatic marks pending rows where no spinner is running.
var IconPendingStatic = "…"

func headerLine(t *theme.Theme, m view.Model, width int) string {
	title := t.Header.Render("testwatch")
	root := m.ProjectRoot
	if root == "" {
		root = "loading workspace"
	}
	avail := width - lipgloss.Width(title) - 3
	return title + "  " + t.Muted.Render(truncateLeft(root, avail))
}

// totalsLine summarizes the counts. glyph is shown while a runner is busy.
func totalsLine(t *theme.Theme, m view.Model, glyph string) string {
	if m.Totals == nil {
		if m.Summary.Err != nil {
			return t.Warning.Render(theme.IconWarning + " summary unavailable")
		}
		return t.Muted.Render("loading summary")
	}
	parts := []string{
		t.Success.Render(fmt.Sprintf("%d passed", m.Totals.Passed)),
		failedStyle(t, m.Totals.Failed).Render(fmt.Sprintf("%d failed", m.Totals.Failed)),
		t.Muted.Render(fmt.Sprintf("%d skipped", m.Totals.Skipped)),
	}
	if m.Totals.Todo > 0 {
		parts = append(parts, t.Muted.Render(fmt.Sprintf("%d todo", m.Totals.Todo)))
	}
	line := strings.Join(parts, t.Muted.Render(" · "))
	line += t.Muted.Render(fmt.Sprintf("  in %d files", m.Totals.Files))

	switch {
	case m.Busy && glyph != "":
		line += "  " + glyph + " " + t.Info.Render("running")
	case m.Busy:
		line += "  " + t.Info.Render(theme.IconRunning+" running")
	}
	if m.Summary.Stale || m.Runner.Stale {
		line += "  " + t.Warning.Render("(reconnecting)")
	}
	return line
}

func failedStyle(t *theme.Theme, failed int) lipgloss.Style {
	if failed > 0 {
		return t.Error
	}
	return t.Muted
}

// noticeLines renders the error notices. interactive adds the dismiss hint.
func noticeLines(t *theme.Theme, notices []view.Notice, interactive bool) []string {
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		line := t.Warning.Render(theme.IconWarning+" "+n.Source+":") + " " + n.Message
		if interactive && n.Dismissible {
			line += t.Muted.Render("  (x to dismiss)")
		}
		lines = append(lines, line)
	}
	return lines
}

// fileList renders rows[start:end] of the file list with the cursor on
// index cursor (-1 for none).
func fileList(t *theme.Theme, m view.Model, width, cursor, start, end int, pendingGlyph string) string {
	if m.Workspace.Loading {
		if m.Workspace.Err != nil {
			return t.Error.Render("workspace unavailable: ") + m.Workspace.Err.Error() + "\n"
		}
		return t.Muted.Render("loading workspace") + "\n"
	}
	if len(m.Files) == 0 {
		return t.Muted.Render("no test files found") + "\n"
	}

	var b strings.Builder
	for i := start; i < end && i < len(m.Files); i++ {
		b.WriteString(fileLine(t, m.Files[i], width, i == cursor, pendingGlyph))
		b.WriteString("\n")
	}
	return b.String()
}

func fileLine(t *theme.Theme, row view.FileRow, width int, cursor bool, pendingGlyph string) string {
	marker := "  "
	if cursor {
		marker = t.Cursor.Render(theme.IconArrow) + " "
	}

	icon := t.StatusStyle(row.Status).Render(theme.StatusIcon(row.Status))
	if row.Running {
		icon = t.Info.Render(theme.IconRunning)
	}

	suffix := ""
	switch {
	case row.Pending:
		suffix = " " + pendingGlyph
	case row.Failed > 0:
		suffix = " " + t.Error.Render(fmt.Sprintf("%d failed", row.Failed))
	case row.Passed > 0:
		suffix = " " + t.Muted.Render(fmt.Sprintf("%d passed", row.Passed))
	}

	avail := width - lipgloss.Width(marker) - lipgloss.Width(icon) - lipgloss.Width(suffix) - 2
	name := truncateLeft(row.Path, avail)
	switch {
	case row.Selected:
		name = t.Selected.Render(name)
	case row.Status == models.TestStatusFailed:
		name = t.Normal.Render(name)
	}
	return marker + icon + " " + name + suffix
}

// detailPane renders the selected file.
func detailPane(t *theme.Theme, tf *view.TestFile, width int, pendingGlyph string) string {
	var lines []string

	title := t.Bold.Render(path.Base(tf.Path))
	if tf.Pending {
		title += " " + pendingGlyph + t.Muted.Render(" selecting")
	}
	lines = append(lines, title)
	lines = append(lines, t.Muted.Render(truncateLeft(tf.ProjectRoot+"/"+tf.Path, width-4)))

	if s := tf.Summary; s != nil {
		lines = append(lines, "")
		status := t.StatusStyle(s.Status).Render(theme.StatusIcon(s.Status) + " " + statusLabel(s.Status))
		lines = append(lines, fmt.Sprintf("%s  %d passed, %d failed, %d skipped, %d todo",
			status, s.Passed, s.Failed, s.Skipped, s.Todo))
		for _, msg := range s.FailureMessages {
			for _, l := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
				lines = append(lines, t.Error.Render("  "+truncateRight(l, width-8)))
			}
		}
	} else {
		lines = append(lines, "", t.Muted.Render("no results yet"))
	}

	if r := tf.Runner; r != nil {
		state := t.RunnerStyle(r.Status).Render(string(r.Status))
		line := "runner: " + state
		if r.ActiveFile != "" && r.ActiveFile != tf.Path {
			line += t.Muted.Render(" (on " + r.ActiveFile + ")")
		}
		lines = append(lines, line)
	} else if tf.Running {
		lines = append(lines, "runner: "+t.Info.Render("running"))
	}

	box := t.DetailsBox
	if width > 4 {
		box = box.Width(width - 2)
	}
	return box.Render(strings.Join(lines, "\n"))
}

func statusLabel(s models.TestStatus) string {
	if s == models.TestStatusUnknown {
		return "not run"
	}
	return string(s)
}

// truncateLeft shortens s to n cells by dropping its beginning.
func truncateLeft(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}

// truncateRight shortens s to n cells by dropping its end.
func truncateRight(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
