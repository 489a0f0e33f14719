// Package engine orchestrates background collectors for the daemon.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/grovetools/testwatch/internal/daemon/collector"
	"github.com/grovetools/testwatch/internal/daemon/store"
	"github.com/sirupsen/logrus"
)

// stableRun is how long a collector must run before its restart delay resets.
const stableRun = time.Minute

// Engine runs the collectors and applies their updates to the store.
type Engine struct {
	store      *store.Store
	collectors []collector.Collector
	logger     *logrus.Entry
	newBackOff func() backoff.BackOff
}

// New creates a new Engine instance.
func New(st *store.Store, logger *logrus.Entry) *Engine {
	return &Engine{
		store:  st,
		logger: logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// SetRestartBackOff replaces the delay policy between collector restarts.
func (e *Engine) SetRestartBackOff(fn func() backoff.BackOff) {
	e.newBackOff = fn
}

// Register adds a collector to the engine.
func (e *Engine) Register(c collector.Collector) {
	e.collectors = append(e.collectors, c)
}

// Start runs all collectors and blocks until ctx is canceled. Updates are
// applied by a single consumer so the store sees them in emission order.
// A collector that fails is restarted after a backoff delay.
func (e *Engine) Start(ctx context.Context) {
	updates := make(chan store.Update, 100)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				if err := e.store.ApplyUpdate(u); err != nil {
					e.logger.WithError(err).WithFields(logrus.Fields{
						"source": u.Source,
						"type":   u.Type,
					}).Warn("Dropping update")
				}
			}
		}
	}()

	for _, c := range e.collectors {
		wg.Add(1)
		go func(col collector.Collector) {
			defer wg.Done()
			e.supervise(ctx, col, updates)
		}(c)
	}

	wg.Wait()
}

// supervise runs col until ctx ends or it returns cleanly.
func (e *Engine) supervise(ctx context.Context, col collector.Collector, updates chan<- store.Update) {
	log := e.logger.WithField("collector", col.Name())
	b := e.newBackOff()

	for {
		log.Info("Starting collector")
		started := time.Now()
		err := col.Run(ctx, e.store, updates)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			log.Debug("Collector finished")
			return
		}

		if time.Since(started) >= stableRun {
			b.Reset()
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			log.WithError(err).Error("Collector failed, not restarting")
			return
		}
		log.WithError(err).WithField("retry_in", delay).Warn("Collector failed")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// Store returns the engine's state store.
func (e *Engine) Store() *store.Store {
	return e.store
}
