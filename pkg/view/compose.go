// Package view composes the render input for the workspace explorer from the
// independently loaded sources.
package view

import (
	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/pkg/channel"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/grovetools/testwatch/pkg/selection"
	"github.com/grovetools/testwatch/pkg/snapshot"
)

// Source names used in sections and notices.
const (
	SourceWorkspace    = "workspace"
	SourceSelectedFile = "selected file"
	SourceSummary      = "summary"
	SourceRunner       = "runner status"
	SourceSelection    = "selection"
)

// Input is everything the view is composed from.
type Input struct {
	Selection    selection.State
	Workspace    snapshot.Entry[models.WorkspaceListing]
	SelectedFile snapshot.Entry[string]
	Summary      channel.Snapshot[models.TestSummary]
	Runner       channel.Snapshot[models.RunnerStatus]
}

// Section is the load state of one source.
type Section struct {
	// Loading is true until the source has produced its first value.
	Loading bool `json:"loading"`
	// Pending is true while a refetch is in flight.
	Pending bool `json:"pending,omitempty"`
	// Stale is true when the displayed value may be behind the server.
	Stale bool  `json:"stale,omitempty"`
	Err   error `json:"-"`
}

// FileRow is one entry of the file list.
type FileRow struct {
	Path     string            `json:"path"`
	Status   models.TestStatus `json:"status,omitempty"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Selected bool              `json:"selected,omitempty"`
	Pending  bool              `json:"pending,omitempty"`
	Running  bool              `json:"running,omitempty"`
}

// TestFile is the detail pane for the selected file.
type TestFile struct {
	ProjectRoot string                 `json:"project_root"`
	Path        string                 `json:"path"`
	Pending     bool                   `json:"pending,omitempty"`
	Summary     *models.FileSummary    `json:"summary,omitempty"`
	Runner      *models.RunnerEntry    `json:"runner,omitempty"`
	Running     bool                   `json:"running,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Notice is a user-visible error.
type Notice struct {
	Source  string           `json:"source"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
	// Dismissible notices are cleared by the dismiss intent; the rest clear
	// when their source recovers.
	Dismissible bool `json:"dismissible,omitempty"`
}

// Model is the render input.
type Model struct {
	Workspace    Section `json:"workspace"`
	SelectedFile Section `json:"selected_file"`
	Summary      Section `json:"summary"`
	Runner       Section `json:"runner"`

	ProjectRoot string    `json:"project_root,omitempty"`
	Files       []FileRow `json:"files"`
	// Selected is the file to highlight: the pending one while a selection is
	// in flight.
	Selected  string `json:"selected,omitempty"`
	Selecting bool   `json:"selecting,omitempty"`

	TestFile *TestFile `json:"test_file,omitempty"`
	// Totals is nil until the summary is loaded.
	Totals *models.Totals `json:"totals,omitempty"`
	Busy   bool           `json:"busy,omitempty"`

	SearchOpen  bool     `json:"search_open"`
	SearchFiles []string `json:"search_files,omitempty"`

	Notices []Notice `json:"notices,omitempty"`
}

// Ready reports whether every source has produced a value.
func (m Model) Ready() bool {
	return !m.Workspace.Loading && !m.SelectedFile.Loading && !m.Summary.Loading && !m.Runner.Loading
}

// Compose builds the model. It reads only its input.
func Compose(in Input) Model {
	m := Model{
		Workspace:    entrySection(in.Workspace.Loaded, in.Workspace.Pending, in.Workspace.Err),
		SelectedFile: entrySection(in.SelectedFile.Loaded, in.SelectedFile.Pending, in.SelectedFile.Err),
		Summary:      channelSection(SourceSummary, in.Summary.Ready, in.Summary.Live, in.Summary.Closed, in.Summary.Err),
		Runner:       channelSection(SourceRunner, in.Runner.Ready, in.Runner.Live, in.Runner.Closed, in.Runner.Err),
		Selected:     in.Selection.Current(),
		Selecting:    in.Selection.Phase == selection.Selecting,
		SearchOpen:   in.Selection.SearchOpen,
	}

	var (
		summary *models.TestSummary
		runners *models.RunnerStatus
	)
	if in.Summary.Ready && !in.Summary.Closed {
		summary = &in.Summary.Value
		totals := summary.Totals()
		m.Totals = &totals
	}
	if in.Runner.Ready && !in.Runner.Closed {
		runners = &in.Runner.Value
		m.Busy = runners.Busy()
	}

	if in.Workspace.Loaded {
		ws := in.Workspace.Value
		m.ProjectRoot = ws.ProjectRoot
		m.Files = fileRows(ws, m.Selected, m.Selecting, summary, runners)
		if m.SearchOpen {
			m.SearchFiles = ws.Paths()
		}
		if m.Selected != "" {
			m.TestFile = testFile(ws, m.Selected, m.Selecting, summary, runners)
		}
	}

	m.Notices = notices(in, m)
	return m
}

func entrySection(loaded, pending bool, err error) Section {
	return Section{
		Loading: !loaded,
		Pending: pending,
		Stale:   loaded && err != nil,
		Err:     err,
	}
}

func channelSection(source string, ready, live, closed bool, err error) Section {
	if closed {
		return Section{Loading: !ready, Stale: ready, Err: errors.Closed(source)}
	}
	return Section{
		Loading: !ready,
		Stale:   ready && !live,
		Err:     err,
	}
}

func fileRows(ws models.WorkspaceListing, selected string, selecting bool, summary *models.TestSummary, runners *models.RunnerStatus) []FileRow {
	rows := make([]FileRow, 0, len(ws.Files))
	for _, f := range ws.Files {
		row := FileRow{
			Path:     f.Path,
			Selected: f.Path == selected,
			Pending:  selecting && f.Path == selected,
		}
		if summary != nil {
			if fs, ok := summary.Files[f.Path]; ok {
				row.Status = fs.Status
				row.Passed = fs.Passed
				row.Failed = fs.Failed
			}
		}
		if runners != nil {
			row.Running = runners.IsRunning(f.Path)
		}
		rows = append(rows, row)
	}
	return rows
}

func testFile(ws models.WorkspaceListing, path string, pending bool, summary *models.TestSummary, runners *models.RunnerStatus) *TestFile {
	tf := &TestFile{ProjectRoot: ws.ProjectRoot, Path: path, Pending: pending}
	if entry, ok := ws.Lookup(path); ok {
		tf.Metadata = entry.Metadata
	}
	if summary != nil {
		if fs, ok := summary.Files[path]; ok {
			tf.Summary = &fs
		}
	}
	if runners != nil {
		if entry, ok := runners.EntryFor(path); ok {
			tf.Runner = &entry
		}
		tf.Running = runners.IsRunning(path)
	}
	return tf
}

func notices(in Input, m Model) []Notice {
	var out []Notice
	if err := in.Selection.Err; err != nil {
		out = append(out, notice(SourceSelection, err, true))
	}
	sections := []struct {
		source  string
		section Section
	}{
		{SourceWorkspace, m.Workspace},
		{SourceSelectedFile, m.SelectedFile},
		{SourceSummary, m.Summary},
		{SourceRunner, m.Runner},
	}
	for _, s := range sections {
		if s.section.Err == nil {
			continue
		}
		// A live channel has recovered; the recorded error is history.
		if !s.section.Loading && !s.section.Stale {
			continue
		}
		out = append(out, notice(s.source, s.section.Err, false))
	}
	return out
}

func notice(source string, err error, dismissible bool) Notice {
	return Notice{
		Source:      source,
		Code:        errors.GetCode(err),
		Message:     err.Error(),
		Dismissible: dismissible,
	}
}
