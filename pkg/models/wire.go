package models

// Frame is one websocket message on a subscription. ID identifies the
// subscription; exactly one payload field is set, matching Topic.
type Frame struct {
	ID           string             `json:"id"`
	Topic        string             `json:"topic"`
	SummaryDelta *SummaryDelta      `json:"summary_delta,omitempty"`
	RunnerDelta  *RunnerStatusDelta `json:"runner_delta,omitempty"`
	SelectedFile *string            `json:"selected_file,omitempty"`
	Workspace    *WorkspaceListing  `json:"workspace,omitempty"`
}

// AppState is the payload of the app query.
type AppState struct {
	SelectedFile string `json:"selected_file"`
}
