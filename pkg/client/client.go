// Package client provides access to the testwatch daemon.
// It implements a transparent fallback pattern: if the daemon is running, talk
// to it over its socket; if not, a caller-supplied in-process backend is used.
package client

import (
	"context"

	"github.com/grovetools/testwatch/pkg/models"
)

// Backend is everything the workspace view needs from the server: the two
// snapshot queries, the two live facts and the selection mutation.
type Backend interface {
	FetchSelectedFile(ctx context.Context) (string, error)
	FetchWorkspace(ctx context.Context) (models.WorkspaceListing, error)

	FetchSummary(ctx context.Context) (models.TestSummary, error)
	// SubscribeSummary streams summary deltas until ctx is cancelled or the
	// connection drops; the returned channel is closed either way.
	SubscribeSummary(ctx context.Context) (<-chan models.SummaryDelta, error)

	FetchRunnerStatus(ctx context.Context) (models.RunnerStatus, error)
	SubscribeRunnerStatus(ctx context.Context) (<-chan models.RunnerStatusDelta, error)

	// SetSelectedFile asks the server to change the selection. A rejected
	// request returns the server's error.
	SetSelectedFile(ctx context.Context, path string) error
}

// Client is a Backend with connection management.
type Client interface {
	Backend

	// SubscribeWorkspace streams full listings whenever the daemon rescans.
	SubscribeWorkspace(ctx context.Context) (<-chan models.WorkspaceListing, error)

	// SubscribeSelectedFile streams the selected file whenever any client
	// changes it or the daemon clears it. "" means none.
	SubscribeSelectedFile(ctx context.Context) (<-chan string, error)

	// IsRunning returns true if the daemon is available and responding.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}
