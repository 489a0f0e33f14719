// Package scrollbar draws a one-column scrollbar beside a windowed list.
package scrollbar

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/testwatch/tui/theme"
)

const (
	thumb = "█"
	track = "░"
)

// Generate returns one scrollbar cell per row for a window of height rows
// starting at offset in a list of total rows.
func Generate(total, offset, height int) []string {
	if height <= 0 {
		return []string{}
	}
	bar := make([]string, height)
	muted := theme.DefaultTheme.Muted

	if total <= height {
		for i := range bar {
			bar[i] = " "
		}
		return bar
	}

	thumbSize := max(1, height*height/total)
	maxStart := height - thumbSize
	maxOffset := total - height
	if offset > maxOffset {
		offset = maxOffset
	}
	if offset < 0 {
		offset = 0
	}
	start := (maxStart*offset + maxOffset/2) / maxOffset

	for i := range bar {
		if i >= start && i < start+thumbSize {
			bar[i] = muted.Render(thumb)
		} else {
			bar[i] = muted.Render(track)
		}
	}
	return bar
}

// Overlay pads every line of content to width-1 cells and appends the
// scrollbar cell of that row.
func Overlay(content string, width, total, offset int) string {
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	bar := Generate(total, offset, len(lines))

	var b strings.Builder
	for i, line := range lines {
		if pad := width - 1 - lipgloss.Width(line); pad > 0 {
			line += strings.Repeat(" ", pad)
		}
		b.WriteString(line)
		b.WriteString(bar[i])
		b.WriteString("\n")
	}
	return b.String()
}
