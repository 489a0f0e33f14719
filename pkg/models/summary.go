package models

import (
	"fmt"
)

// TestStatus is the aggregate outcome of a test file.
type TestStatus string

const (
	TestStatusUnknown TestStatus = ""
	TestStatusRunning TestStatus = "running"
	TestStatusPassed  TestStatus = "passed"
	TestStatusFailed  TestStatus = "failed"
	TestStatusSkipped TestStatus = "skipped"
)

// Valid reports whether s is a known status.
func (s TestStatus) Valid() bool {
	switch s {
	case TestStatusUnknown, TestStatusRunning, TestStatusPassed, TestStatusFailed, TestStatusSkipped:
		return true
	}
	return false
}

// FileSummary holds the counts for one test file.
type FileSummary struct {
	Path            string     `json:"path"`
	Status          TestStatus `json:"status"`
	Passed          int        `json:"passed"`
	Failed          int        `json:"failed"`
	Skipped         int        `json:"skipped"`
	Todo            int        `json:"todo"`
	FailureMessages []string   `json:"failure_messages,omitempty"`
}

// Total is the number of tests counted in the file.
func (f FileSummary) Total() int {
	return f.Passed + f.Failed + f.Skipped + f.Todo
}

func (f FileSummary) validate() error {
	if f.Path == "" {
		return fmt.Errorf("file summary has no path")
	}
	if !f.Status.Valid() {
		return fmt.Errorf("file summary for %s has unknown status %q", f.Path, f.Status)
	}
	if f.Passed < 0 || f.Failed < 0 || f.Skipped < 0 || f.Todo < 0 {
		return fmt.Errorf("file summary for %s has negative counts", f.Path)
	}
	return nil
}

// TestSummary is the aggregate test summary keyed by file path. Seq is the
// sequence number of the last change folded into it; the daemon stamps it
// on snapshots so clients can tell which deltas are already included.
type TestSummary struct {
	Seq   uint64                 `json:"seq"`
	Files map[string]FileSummary `json:"files"`
}

// Totals aggregates the per-file counts.
type Totals struct {
	Files   int `json:"files"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Todo    int `json:"todo"`
}

// Totals sums the counts across all files.
func (s TestSummary) Totals() Totals {
	var t Totals
	for _, f := range s.Files {
		t.Files++
		t.Passed += f.Passed
		t.Failed += f.Failed
		t.Skipped += f.Skipped
		t.Todo += f.Todo
	}
	return t
}

// Clone returns a deep copy of the summary.
func (s TestSummary) Clone() TestSummary {
	files := make(map[string]FileSummary, len(s.Files))
	for k, v := range s.Files {
		if v.FailureMessages != nil {
			v.FailureMessages = append([]string(nil), v.FailureMessages...)
		}
		files[k] = v
	}
	return TestSummary{Seq: s.Seq, Files: files}
}

// SummaryDelta is one incremental change to the test summary. A nil Summary
// removes Path from the summary.
type SummaryDelta struct {
	Seq     uint64       `json:"seq"`
	Path    string       `json:"path"`
	Summary *FileSummary `json:"summary,omitempty"`
}

// ApplySummaryDelta folds d into s. The input is never modified; a malformed
// delta returns an error and no partial result.
func ApplySummaryDelta(s TestSummary, d SummaryDelta) (TestSummary, error) {
	if d.Path == "" {
		return s, fmt.Errorf("summary delta %d has no path", d.Seq)
	}
	if d.Summary != nil {
		if err := d.Summary.validate(); err != nil {
			return s, err
		}
		if d.Summary.Path != d.Path {
			return s, fmt.Errorf("summary delta %d targets %s but carries %s", d.Seq, d.Path, d.Summary.Path)
		}
	}

	next := s.Clone()
	if d.Summary == nil {
		delete(next.Files, d.Path)
	} else {
		next.Files[d.Path] = *d.Summary
	}
	if d.Seq > next.Seq {
		next.Seq = d.Seq
	}
	return next, nil
}
