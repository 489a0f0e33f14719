package collector

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/models"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

// Default file patterns, in patternmatcher syntax relative to the root.
var (
	DefaultInclude = []string{"**/*.test", "**/*.test.*", "**/*.spec.*", "**/*_test.go"}
	DefaultExclude = []string{"**/.git", "**/node_modules", "**/vendor", "**/.testwatch"}
)

// WorkspaceOptions configures a WorkspaceCollector.
type WorkspaceOptions struct {
	Root     string
	Include  []string
	Exclude  []string
	Interval time.Duration
	// Debounce groups file system events before a rescan. Zero disables
	// watching; the collector then relies on Interval alone.
	Debounce time.Duration
}

// WorkspaceCollector discovers test files under the project root and
// maintains the workspace listing.
type WorkspaceCollector struct {
	root     string
	interval time.Duration
	debounce time.Duration
	logger   *logrus.Entry

	mu      sync.Mutex // patternmatcher is not safe for concurrent use
	include *patternmatcher.PatternMatcher
	exclude *patternmatcher.PatternMatcher
}

// NewWorkspaceCollector creates a new WorkspaceCollector. If the interval is
// 0, defaults to 30 seconds.
func NewWorkspaceCollector(opts WorkspaceOptions) (*WorkspaceCollector, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if len(opts.Include) == 0 {
		opts.Include = DefaultInclude
	}
	if opts.Exclude == nil {
		opts.Exclude = DefaultExclude
	}
	if opts.Interval == 0 {
		opts.Interval = 30 * time.Second
	}

	include, err := patternmatcher.New(opts.Include)
	if err != nil {
		return nil, fmt.Errorf("invalid include pattern: %w", err)
	}
	exclude, err := patternmatcher.New(opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("invalid exclude pattern: %w", err)
	}

	return &WorkspaceCollector{
		root:     root,
		interval: opts.Interval,
		debounce: opts.Debounce,
		logger:   logging.NewLogger("collector.workspace"),
		include:  include,
		exclude:  exclude,
	}, nil
}

// Name returns the collector's name.
func (c *WorkspaceCollector) Name() string { return "workspace" }

// Root returns the absolute project root.
func (c *WorkspaceCollector) Root() string { return c.root }

// Scan walks the project root and returns the matching test files sorted by
// path. Paths are slash-separated and relative to the root.
func (c *WorkspaceCollector) Scan() (models.WorkspaceListing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	listing := models.WorkspaceListing{ProjectRoot: c.root, Files: []models.FileEntry{}}
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == c.root {
				return err
			}
			c.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable path")
			return nil
		}
		rel, err := filepath.Rel(c.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		excluded, err := c.exclude.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if excluded {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded {
			return nil
		}
		included, err := c.include.MatchesOrParentMatches(rel)
		if err != nil {
			return err
		}
		if included {
			listing.Files = append(listing.Files, models.FileEntry{
				Path:     rel,
				Metadata: map[string]interface{}{"dir": filepath.ToSlash(filepath.Dir(rel)), "ext": filepath.Ext(rel)},
			})
		}
		return nil
	})
	if err != nil {
		return models.WorkspaceListing{}, fmt.Errorf("failed to scan %s: %w", c.root, err)
	}

	sort.Slice(listing.Files, func(i, j int) bool { return listing.Files[i].Path < listing.Files[j].Path })
	return listing, nil
}

// dirs returns the directories a watcher should observe.
func (c *WorkspaceCollector) dirs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	_ = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(c.root, path); rel != "." {
			if excluded, _ := c.exclude.MatchesOrParentMatches(filepath.ToSlash(rel)); excluded {
				return filepath.SkipDir
			}
		}
		out = append(out, path)
		return nil
	})
	return out
}

// Run starts the workspace discovery loop.
func (c *WorkspaceCollector) Run(ctx context.Context, st *store.Store, updates chan<- store.Update) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var (
		watcher *dirWatcher
		changes <-chan string
	)
	if c.debounce > 0 {
		w, err := newDirWatcher(c.debounce, c.logger)
		if err != nil {
			c.logger.WithError(err).Warn("File watching unavailable, falling back to interval scans")
		} else {
			defer w.Close()
			w.Sync(c.dirs())
			go w.Start(ctx)
			watcher, changes = w, w.Changes()
		}
	}

	scan := func(reason string) {
		start := time.Now()
		defer func() {
			if d := time.Since(start); d > 500*time.Millisecond {
				c.logger.WithField("duration", d).Warn("Slow workspace scan detected")
			}
		}()

		listing, err := c.Scan()
		if err != nil {
			c.logger.WithError(err).Error("Workspace scan failed")
			return
		}
		if sameListing(st.Workspace(), listing) {
			return
		}
		c.logger.WithFields(logrus.Fields{"files": len(listing.Files), "reason": reason}).Debug("Workspace changed")
		select {
		case updates <- store.Update{Type: store.UpdateWorkspace, Source: c.Name(), Payload: listing}:
		case <-ctx.Done():
		}
	}

	// Initial scan
	scan("initial")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			scan("interval")
		case path := <-changes:
			c.logger.WithField("path", path).Debug("File system change")
			watcher.Sync(c.dirs())
			scan("watch")
		}
	}
}

func sameListing(a, b models.WorkspaceListing) bool {
	if a.ProjectRoot != b.ProjectRoot || len(a.Files) != len(b.Files) {
		return false
	}
	for i := range a.Files {
		if a.Files[i].Path != b.Files[i].Path {
			return false
		}
	}
	return true
}
