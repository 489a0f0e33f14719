package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/hpcloud/tail"
	"github.com/sirupsen/logrus"
)

// Event kinds written by test runners to the events file, one JSON object
// per line.
const (
	EventRunStart    = "run_start"
	EventFileStart   = "file_start"
	EventFileResult  = "file_result"
	EventRunEnd      = "run_end"
	EventFileRemoved = "file_removed"
)

// DefaultRunner is used when an event names no runner.
const DefaultRunner = "default"

// ResultEvent is one line of the events file.
type ResultEvent struct {
	Event    string   `json:"event"`
	Runner   string   `json:"runner,omitempty"`
	Path     string   `json:"path,omitempty"`
	Passed   int      `json:"passed,omitempty"`
	Failed   int      `json:"failed,omitempty"`
	Skipped  int      `json:"skipped,omitempty"`
	Todo     int      `json:"todo,omitempty"`
	Failures []string `json:"failures,omitempty"`
	OK       *bool    `json:"ok,omitempty"`
}

// ParseEvent decodes one events-file line into store updates.
func ParseEvent(line string) ([]store.Update, error) {
	var ev ResultEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return nil, fmt.Errorf("invalid event line: %w", err)
	}
	runner := ev.Runner
	if runner == "" {
		runner = DefaultRunner
	}

	runnerUpdate := func(status models.RunnerState, active string) store.Update {
		return store.Update{Type: store.UpdateRunner, Source: "results", Payload: store.RunnerChange{
			RunnerID: runner, Status: status, ActiveFile: active,
		}}
	}
	summaryUpdate := func(fs *models.FileSummary) store.Update {
		return store.Update{Type: store.UpdateSummary, Source: "results", Payload: store.SummaryChange{
			Path: ev.Path, Summary: fs,
		}}
	}
	needPath := func() error {
		if ev.Path == "" {
			return fmt.Errorf("%s event without path", ev.Event)
		}
		return nil
	}

	switch ev.Event {
	case EventRunStart:
		return []store.Update{runnerUpdate(models.RunnerRunning, "")}, nil

	case EventFileStart:
		if err := needPath(); err != nil {
			return nil, err
		}
		return []store.Update{
			runnerUpdate(models.RunnerRunning, ev.Path),
			summaryUpdate(&models.FileSummary{Path: ev.Path, Status: models.TestStatusRunning}),
		}, nil

	case EventFileResult:
		if err := needPath(); err != nil {
			return nil, err
		}
		fs := &models.FileSummary{
			Path:            ev.Path,
			Status:          resultStatus(ev),
			Passed:          ev.Passed,
			Failed:          ev.Failed,
			Skipped:         ev.Skipped,
			Todo:            ev.Todo,
			FailureMessages: ev.Failures,
		}
		return []store.Update{summaryUpdate(fs), runnerUpdate(models.RunnerRunning, "")}, nil

	case EventRunEnd:
		status := models.RunnerSucceeded
		if ev.OK != nil && !*ev.OK {
			status = models.RunnerFailed
		}
		return []store.Update{runnerUpdate(status, "")}, nil

	case EventFileRemoved:
		if err := needPath(); err != nil {
			return nil, err
		}
		return []store.Update{summaryUpdate(nil)}, nil
	}
	return nil, fmt.Errorf("unknown event %q", ev.Event)
}

func resultStatus(ev ResultEvent) models.TestStatus {
	switch {
	case ev.Failed > 0:
		return models.TestStatusFailed
	case ev.Passed > 0:
		return models.TestStatusPassed
	default:
		return models.TestStatusSkipped
	}
}

// ResultsCollector follows the events file written by test runners and turns
// each event into summary and runner updates.
type ResultsCollector struct {
	path   string
	poll   bool
	logger *logrus.Entry
}

// NewResultsCollector creates a collector for the events file at path. The
// file does not need to exist yet.
func NewResultsCollector(path string) *ResultsCollector {
	return &ResultsCollector{
		path:   path,
		logger: logging.NewLogger("collector.results"),
	}
}

// WithPolling makes the collector poll the file instead of using inotify.
func (c *ResultsCollector) WithPolling() *ResultsCollector {
	c.poll = true
	return c
}

// Name returns the collector's name.
func (c *ResultsCollector) Name() string { return "results" }

func (c *ResultsCollector) open(follow bool) (*tail.Tail, error) {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create events directory: %w", err)
	}
	return tail.TailFile(c.path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: !follow,
		Poll:      c.poll,
		// Always start from the beginning so the summary covers the whole run
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:   stdlog.New(io.Discard, "", 0), // Suppress tail library debug output
	})
}

// Run follows the events file until ctx is canceled.
func (c *ResultsCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	t, err := c.open(true)
	if err != nil {
		return fmt.Errorf("cannot tail %s: %w", c.path, err)
	}
	defer t.Cleanup()
	defer t.Stop()

	c.logger.WithField("path", c.path).Info("Following test events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			for _, u := range c.parse(line) {
				select {
				case updates <- u:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// Replay reads the events file once and applies every event to st. A
// missing file leaves st unchanged.
func (c *ResultsCollector) Replay(st *store.Store) error {
	t, err := c.open(false)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot read %s: %w", c.path, err)
	}
	defer t.Cleanup()

	for line := range t.Lines {
		for _, u := range c.parse(line) {
			if err := st.ApplyUpdate(u); err != nil {
				c.logger.WithError(err).Warn("Dropping event")
			}
		}
	}
	return nil
}

func (c *ResultsCollector) parse(line *tail.Line) []store.Update {
	if line.Err != nil {
		c.logger.WithError(line.Err).Debug("Error reading events file")
		return nil
	}
	text := strings.TrimSpace(line.Text)
	if text == "" {
		return nil
	}
	ups, err := ParseEvent(text)
	if err != nil {
		c.logger.WithError(err).WithField("line", text).Warn("Skipping malformed event")
		return nil
	}
	return ups
}
