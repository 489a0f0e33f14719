package cmd

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/grovetools/testwatch/config"
	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/internal/daemon/collector"
	"github.com/grovetools/testwatch/internal/daemon/engine"
	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/grovetools/testwatch/logging"
	"github.com/grovetools/testwatch/pkg/client"
	"github.com/grovetools/testwatch/pkg/explorer"
	"github.com/sirupsen/logrus"
)

// connectMode selects which backends a command accepts.
type connectMode int

const (
	// connectAuto uses the daemon and falls back to an in-process engine.
	connectAuto connectMode = iota
	// connectLocal always runs an in-process engine.
	connectLocal
	// connectDaemon requires a running daemon.
	connectDaemon
)

// newEngine wires both collectors for cfg into an engine over st.
func newEngine(cfg *config.Config, st *store.Store, logger *logrus.Entry) (*engine.Engine, error) {
	ws, err := collector.NewWorkspaceCollector(collector.WorkspaceOptions{
		Root:     cfg.Workspace.Root,
		Include:  cfg.Workspace.Include,
		Exclude:  cfg.Workspace.Exclude,
		Interval: cfg.Workspace.ScanInterval,
		Debounce: cfg.Workspace.Debounce,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "cannot watch workspace")
	}

	results := collector.NewResultsCollector(cfg.Results.EventsFile)
	if cfg.Results.Poll {
		results = results.WithPolling()
	}

	eng := engine.New(st, logger)
	eng.Register(ws)
	eng.Register(results)
	return eng, nil
}

// startLocal runs an engine in this process and returns a client over its
// store. Closing the client stops the engine.
func startLocal(cfg *config.Config) (client.Client, error) {
	logger := logging.NewLogger("local")
	st := store.New()
	eng, err := newEngine(cfg, st, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Start(ctx)
	}()
	logger.WithField("root", cfg.Workspace.Root).Debug("Running without daemon")

	return client.NewLocalClient(st, func() {
		cancel()
		<-done
	}), nil
}

// connect returns a client for cfg according to mode.
func connect(cfg *config.Config, mode connectMode) (client.Client, error) {
	if mode == connectLocal {
		return startLocal(cfg)
	}

	opts := client.Options{
		Socket:         cfg.Daemon.Socket,
		Addr:           cfg.Daemon.Addr,
		RequestTimeout: cfg.Client.RequestTimeout,
	}
	if mode == connectAuto {
		opts.Fallback = func() (client.Client, error) { return startLocal(cfg) }
	}
	c, err := client.New(opts)
	if err != nil {
		return nil, fmt.Errorf("cannot connect: %w", err)
	}
	return c, nil
}

// newExplorer builds the workspace view over c with the client settings of cfg.
func newExplorer(c client.Client, cfg *config.Config) *explorer.Explorer {
	initial, maxDelay := cfg.Client.ReconnectInitial, cfg.Client.ReconnectMax
	return explorer.New(c,
		explorer.WithLogger(logging.NewLogger("explorer")),
		explorer.WithMutationTimeout(cfg.Client.MutationTimeout),
		explorer.WithWorkspaceWatch(c),
		explorer.WithSelectionWatch(c),
		explorer.WithBackOff(func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = maxDelay
			return b
		}),
	)
}
