// Package store provides the in-memory state store for the testwatch daemon.
package store

import (
	"github.com/grovetools/testwatch/pkg/models"
)

// State represents the complete world view of the daemon.
type State struct {
	SelectedFile string                  `json:"selected_file"`
	Workspace    models.WorkspaceListing `json:"workspace"`
	Summary      models.TestSummary      `json:"summary"`
	Runner       models.RunnerStatus     `json:"runner_status"`
}

// UpdateType defines what kind of data changed.
type UpdateType string

const (
	UpdateWorkspace UpdateType = "workspace"
	UpdateSummary   UpdateType = "summary"
	UpdateRunner    UpdateType = "runner"
)

// Update is a change reported by a collector.
type Update struct {
	Type   UpdateType
	Source string // Which collector sent this update (e.g., "workspace", "results")
	// Payload is a models.WorkspaceListing, SummaryChange or RunnerChange
	// depending on Type.
	Payload interface{}
}

// SummaryChange replaces or removes one file summary. A nil Summary removes
// the file.
type SummaryChange struct {
	Path    string
	Summary *models.FileSummary
}

// RunnerChange updates one runner.
type RunnerChange struct {
	RunnerID   string
	Status     models.RunnerState
	ActiveFile string
	Removed    bool
}

// Topic names a subscription stream.
type Topic string

const (
	TopicSummary      Topic = "summary"
	TopicRunnerStatus Topic = "runner-status"
	TopicWorkspace    Topic = "workspace"
	TopicSelectedFile Topic = "selected-file"
)

// ParseTopic validates a topic name.
func ParseTopic(s string) (Topic, bool) {
	switch t := Topic(s); t {
	case TopicSummary, TopicRunnerStatus, TopicWorkspace, TopicSelectedFile:
		return t, true
	}
	return "", false
}

// Event is what subscribers receive. Exactly one of the payload fields is
// set, matching Topic.
type Event struct {
	Topic        Topic                     `json:"topic"`
	Summary      *models.SummaryDelta      `json:"summary_delta,omitempty"`
	Runner       *models.RunnerStatusDelta `json:"runner_delta,omitempty"`
	SelectedFile *string                   `json:"selected_file,omitempty"`
	Workspace    *models.WorkspaceListing  `json:"workspace,omitempty"`
}
