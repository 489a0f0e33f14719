package models

import (
	"fmt"
)

// RunnerState is the execution state of a single test runner.
type RunnerState string

const (
	RunnerIdle      RunnerState = "idle"
	RunnerRunning   RunnerState = "running"
	RunnerFailed    RunnerState = "failed"
	RunnerSucceeded RunnerState = "succeeded"
)

// Valid reports whether s is a known runner state.
func (s RunnerState) Valid() bool {
	switch s {
	case RunnerIdle, RunnerRunning, RunnerFailed, RunnerSucceeded:
		return true
	}
	return false
}

// RunnerEntry describes what one runner is doing.
type RunnerEntry struct {
	Status     RunnerState `json:"status"`
	ActiveFile string      `json:"active_file,omitempty"`
}

// RunnerStatus maps runner IDs to their current entry.
type RunnerStatus struct {
	Seq     uint64                 `json:"seq"`
	Runners map[string]RunnerEntry `json:"runners"`
}

// Clone returns a deep copy.
func (r RunnerStatus) Clone() RunnerStatus {
	runners := make(map[string]RunnerEntry, len(r.Runners))
	for k, v := range r.Runners {
		runners[k] = v
	}
	return RunnerStatus{Seq: r.Seq, Runners: runners}
}

// Busy reports whether any runner is running.
func (r RunnerStatus) Busy() bool {
	for _, e := range r.Runners {
		if e.Status == RunnerRunning {
			return true
		}
	}
	return false
}

// IsRunning reports whether a running runner is currently executing path.
func (r RunnerStatus) IsRunning(path string) bool {
	for _, e := range r.Runners {
		if e.Status == RunnerRunning && e.ActiveFile == path {
			return true
		}
	}
	return false
}

// EntryFor returns the first runner entry whose active file is path.
func (r RunnerStatus) EntryFor(path string) (RunnerEntry, bool) {
	for _, e := range r.Runners {
		if e.ActiveFile == path {
			return e, true
		}
	}
	return RunnerEntry{}, false
}

// RunnerStatusDelta is one incremental change to the runner status.
type RunnerStatusDelta struct {
	Seq        uint64      `json:"seq"`
	RunnerID   string      `json:"runner_id"`
	Status     RunnerState `json:"status,omitempty"`
	ActiveFile string      `json:"active_file,omitempty"`
	Removed    bool        `json:"removed,omitempty"`
}

// ApplyRunnerDelta folds d into r without modifying r.
func ApplyRunnerDelta(r RunnerStatus, d RunnerStatusDelta) (RunnerStatus, error) {
	if d.RunnerID == "" {
		return r, fmt.Errorf("runner delta %d has no runner id", d.Seq)
	}
	if !d.Removed && !d.Status.Valid() {
		return r, fmt.Errorf("runner delta %d has unknown status %q", d.Seq, d.Status)
	}

	next := r.Clone()
	if d.Removed {
		delete(next.Runners, d.RunnerID)
	} else {
		next.Runners[d.RunnerID] = RunnerEntry{Status: d.Status, ActiveFile: d.ActiveFile}
	}
	if d.Seq > next.Seq {
		next.Seq = d.Seq
	}
	return next, nil
}
