package config

import (
	"fmt"
	"net"
	"time"

	"github.com/grovetools/testwatch/errors"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

// Validate checks the semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if _, err := patternmatcher.New(c.Workspace.Include); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid workspace.include pattern")
	}
	if _, err := patternmatcher.New(c.Workspace.Exclude); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid workspace.exclude pattern")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"workspace.scan_interval", c.Workspace.ScanInterval},
		{"workspace.debounce", c.Workspace.Debounce},
		{"client.request_timeout", c.Client.RequestTimeout},
		{"client.mutation_timeout", c.Client.MutationTimeout},
		{"client.reconnect_initial", c.Client.ReconnectInitial},
		{"client.reconnect_max", c.Client.ReconnectMax},
	}
	for _, d := range durations {
		if d.value < 0 {
			return errors.ConfigInvalid(fmt.Sprintf("%s must not be negative", d.name)).
				WithDetail("field", d.name)
		}
	}
	if c.Client.ReconnectMax > 0 && c.Client.ReconnectInitial > c.Client.ReconnectMax {
		return errors.ConfigInvalid("client.reconnect_initial exceeds client.reconnect_max")
	}

	if c.Daemon.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Daemon.Addr); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid daemon.addr").
				WithDetail("addr", c.Daemon.Addr)
		}
	}

	if c.Logging.Level != "" {
		if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid logging.level")
		}
	}
	return nil
}
