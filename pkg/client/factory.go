package client

import (
	"net"
	"os"
	"time"

	"github.com/grovetools/testwatch/errors"
)

// Options selects the daemon New connects to.
type Options struct {
	// Socket is the daemon's Unix socket. Ignored when Addr is set.
	Socket string
	// Addr is a TCP address of a daemon started with --addr.
	Addr           string
	RequestTimeout time.Duration
	// Fallback builds the in-process client used when no daemon answers.
	// When nil, New fails with DAEMON_NOT_RUNNING instead.
	Fallback func() (Client, error)
}

// New returns a Client that will use the daemon if available,
// otherwise falls back to opts.Fallback.
//
// Callers don't need to know whether the daemon is running or not. The same
// API works in both modes.
func New(opts Options) (Client, error) {
	remoteOpts := []RemoteOption{WithRequestTimeout(opts.RequestTimeout)}

	if opts.Addr != "" {
		conn, err := net.DialTimeout("tcp", opts.Addr, 250*time.Millisecond)
		if err == nil {
			conn.Close()
			return NewRemoteTCPClient(opts.Addr, remoteOpts...), nil
		}
	} else if opts.Socket != "" {
		// Check if socket exists and we can connect
		if _, err := os.Stat(opts.Socket); err == nil {
			conn, err := net.DialTimeout("unix", opts.Socket, 100*time.Millisecond)
			if err == nil {
				conn.Close()
				return NewRemoteClient(opts.Socket, remoteOpts...), nil
			}
		}
	}

	if opts.Fallback != nil {
		return opts.Fallback()
	}
	endpoint := opts.Socket
	if opts.Addr != "" {
		endpoint = opts.Addr
	}
	return nil, errors.DaemonNotRunning(endpoint)
}
