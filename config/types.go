package config

import (
	"time"

	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/paths"
	"github.com/grovetools/testwatch/util/pathutil"
)

// Defaults applied by SetDefaults.
const (
	DefaultScanInterval     = 30 * time.Second
	DefaultDebounce         = 200 * time.Millisecond
	DefaultEventsFile       = ".testwatch/events.jsonl"
	DefaultRequestTimeout   = 10 * time.Second
	DefaultMutationTimeout  = 10 * time.Second
	DefaultReconnectInitial = 250 * time.Millisecond
	DefaultReconnectMax     = 10 * time.Second
)

// Config is the testwatch configuration, read from testwatch.yml (or .toml)
// and the global config file.
type Config struct {
	Daemon    DaemonConfig    `yaml:"daemon,omitempty" json:"daemon,omitempty" jsonschema:"description=Where the daemon listens"`
	Workspace WorkspaceConfig `yaml:"workspace,omitempty" json:"workspace,omitempty" jsonschema:"description=Which files are test files"`
	Results   ResultsConfig   `yaml:"results,omitempty" json:"results,omitempty" jsonschema:"description=Test runner event ingestion"`
	Client    ClientConfig    `yaml:"client,omitempty" json:"client,omitempty" jsonschema:"description=Timeouts and reconnect policy of the workspace view"`
	Logging   logging.Config  `yaml:"logging,omitempty" json:"logging,omitempty" jsonschema:"description=Logging configuration"`
}

// DaemonConfig selects the daemon endpoint.
type DaemonConfig struct {
	// Socket defaults to a per-project socket in the runtime directory.
	Socket string `yaml:"socket,omitempty" json:"socket,omitempty" jsonschema:"description=Unix socket path of the daemon"`
	// Addr additionally serves the API on TCP; clients prefer it when set.
	Addr string `yaml:"addr,omitempty" json:"addr,omitempty" jsonschema:"description=Optional TCP listen address (host:port)"`
}

// WorkspaceConfig controls the workspace scan.
type WorkspaceConfig struct {
	Root         string        `yaml:"root,omitempty" json:"root,omitempty" jsonschema:"description=Project root; relative paths resolve against the config file"`
	Include      []string      `yaml:"include,omitempty" json:"include,omitempty" jsonschema:"description=Patterns selecting test files"`
	Exclude      []string      `yaml:"exclude,omitempty" json:"exclude,omitempty" jsonschema:"description=Patterns of paths never scanned"`
	ScanInterval time.Duration `yaml:"scan_interval,omitempty" json:"scan_interval,omitempty" jsonschema:"description=Full rescan interval (e.g. 30s)"`
	Debounce     time.Duration `yaml:"debounce,omitempty" json:"debounce,omitempty" jsonschema:"description=Quiet period after file changes before rescanning"`
}

// ResultsConfig locates the runner's event log.
type ResultsConfig struct {
	EventsFile string `yaml:"events_file,omitempty" json:"events_file,omitempty" jsonschema:"description=JSON-lines file the test runner appends events to"`
	// Poll follows the file by polling instead of inotify.
	Poll bool `yaml:"poll,omitempty" json:"poll,omitempty" jsonschema:"description=Poll the events file instead of watching it"`
}

// ClientConfig tunes the workspace view.
type ClientConfig struct {
	RequestTimeout   time.Duration `yaml:"request_timeout,omitempty" json:"request_timeout,omitempty" jsonschema:"description=Timeout of every query"`
	MutationTimeout  time.Duration `yaml:"mutation_timeout,omitempty" json:"mutation_timeout,omitempty" jsonschema:"description=Timeout of the selection mutation"`
	ReconnectInitial time.Duration `yaml:"reconnect_initial,omitempty" json:"reconnect_initial,omitempty" jsonschema:"description=First delay before resubscribing"`
	ReconnectMax     time.Duration `yaml:"reconnect_max,omitempty" json:"reconnect_max,omitempty" jsonschema:"description=Upper bound of the resubscribe delay"`
}

// SetDefaults fills unset values. baseDir anchors a relative root; the events
// file is anchored at the root.
func (c *Config) SetDefaults(baseDir string) {
	c.Workspace.Root = pathutil.Resolve(baseDir, c.Workspace.Root)

	if c.Workspace.ScanInterval == 0 {
		c.Workspace.ScanInterval = DefaultScanInterval
	}
	if c.Workspace.Debounce == 0 {
		c.Workspace.Debounce = DefaultDebounce
	}

	if c.Results.EventsFile == "" {
		c.Results.EventsFile = DefaultEventsFile
	}
	c.Results.EventsFile = pathutil.Resolve(c.Workspace.Root, c.Results.EventsFile)

	if c.Daemon.Socket == "" {
		c.Daemon.Socket = paths.SocketPath(c.Workspace.Root)
	} else {
		c.Daemon.Socket = pathutil.ExpandHome(c.Daemon.Socket)
	}

	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = DefaultRequestTimeout
	}
	if c.Client.MutationTimeout == 0 {
		c.Client.MutationTimeout = DefaultMutationTimeout
	}
	if c.Client.ReconnectInitial == 0 {
		c.Client.ReconnectInitial = DefaultReconnectInitial
	}
	if c.Client.ReconnectMax == 0 {
		c.Client.ReconnectMax = DefaultReconnectMax
	}
}

// PidFile returns the daemon pid file for the configured root.
func (c *Config) PidFile() string {
	return paths.PidFilePath(c.Workspace.Root)
}
