// Package paths provides XDG-compliant path resolution for testwatch.
//
// Resolution order:
// 1. TESTWATCH_HOME (portable root) → $TESTWATCH_HOME/{config,state,run}
// 2. XDG env vars → $XDG_*_HOME/testwatch
// 3. Platform defaults → ~/.config/testwatch, ~/.local/state/testwatch
package paths

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const appName = "testwatch"

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("TESTWATCH_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("TESTWATCH_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the global testwatch configuration directory.
func ConfigDir() string {
	if os.Getenv("TESTWATCH_HOME") != "" {
		return getConfigHome()
	}
	base := getConfigHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// StateDir returns the testwatch state directory.
// Used for pid files and daemon logs.
func StateDir() string {
	if os.Getenv("TESTWATCH_HOME") != "" {
		return getStateHome()
	}
	base := getStateHome()
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}

// RuntimeDir returns the directory for sockets.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv("TESTWATCH_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// ProjectID returns a short stable identifier for a project root. Each
// project gets its own daemon, socket and pid file.
func ProjectID(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(root))).String()[:8]
}

// SocketPath returns the path to the daemon unix socket for root.
func SocketPath(root string) string {
	return filepath.Join(RuntimeDir(), "testwatch-"+ProjectID(root)+".sock")
}

// PidFilePath returns the path to the daemon PID file for root.
func PidFilePath(root string) string {
	return filepath.Join(StateDir(), "testwatch-"+ProjectID(root)+".pid")
}

// LogFilePath returns the daemon log file written by `daemon start`.
func LogFilePath(root string) string {
	return filepath.Join(StateDir(), "logs", "testwatch-"+ProjectID(root)+".log")
}

// EnsureDirs creates the testwatch directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
