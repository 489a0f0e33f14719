// Package channel keeps one continuously-current value for a live fact.
//
// A Channel pairs an initial snapshot fetch with a stream of incremental
// events. The snapshot is projected into the materialized value with Select
// and every event is folded into it with Apply, strictly in receipt order.
// When the stream ends, fails, or skips sequence numbers, the channel fetches
// a fresh snapshot and resubscribes; events from before the interruption are
// never applied to the new snapshot.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/grovetools/testwatch/errors"
	"github.com/grovetools/testwatch/logging"
	"github.com/sirupsen/logrus"
)

// Source is the transport side of a channel: a query for the initial value
// and a subscription producing events. The subscription ends when the
// returned channel is closed or ctx is cancelled.
type Source[Q, E any] interface {
	Fetch(ctx context.Context) (Q, error)
	Subscribe(ctx context.Context) (<-chan E, error)
}

// SourceFuncs adapts a pair of functions to Source.
type SourceFuncs[Q, E any] struct {
	FetchFunc     func(ctx context.Context) (Q, error)
	SubscribeFunc func(ctx context.Context) (<-chan E, error)
}

// Fetch calls FetchFunc.
func (s SourceFuncs[Q, E]) Fetch(ctx context.Context) (Q, error) { return s.FetchFunc(ctx) }

// Subscribe calls SubscribeFunc.
func (s SourceFuncs[Q, E]) Subscribe(ctx context.Context) (<-chan E, error) {
	return s.SubscribeFunc(ctx)
}

// Config describes a channel.
type Config[Q, E, T any] struct {
	// Label names the channel in logs and errors.
	Label  string
	Source Source[Q, E]
	// Select projects a fetched snapshot into the materialized value.
	Select func(Q) T
	// Apply folds one event into the current value. It must not modify its
	// input; an error discards the event.
	Apply func(T, E) (T, error)

	// SnapshotSeq and EventSeq enable sequence checking. Both must be set
	// for it to take effect. Events at or below the last applied sequence
	// are dropped as stale; an event that skips ahead forces a resync.
	SnapshotSeq func(Q) uint64
	EventSeq    func(E) uint64

	// CatchUp fetches the snapshot again once the subscription is
	// registered and installs it when its sequence is ahead. It closes the
	// window in which a change reaches neither the first fetch nor the
	// stream. Requires sequencing; Subscribe must not return before the
	// source has registered the subscription.
	CatchUp bool

	// Notify is called after every observable change. It must not block.
	Notify func()
	Logger *logrus.Entry
	// BackOff builds the reconnect policy. Defaults to exponential backoff
	// between 250ms and 10s.
	BackOff func() backoff.BackOff
}

// Snapshot is a read-only view of a channel's state.
type Snapshot[T any] struct {
	Label string
	Value T
	// Ready is true once the first snapshot fetch has resolved.
	Ready bool
	// Live is true while a subscription is delivering events.
	Live   bool
	Closed bool
	// Seq is the sequence of the last applied snapshot or event when
	// sequencing is enabled.
	Seq       uint64
	Applied   int
	Discarded int
	Stale     int
	Resyncs   int
	// Err is the last interruption or fetch failure. It is cleared by the
	// next successful fetch.
	Err error
}

// Channel is a subscription channel adapter for one live fact.
type Channel[Q, E, T any] struct {
	cfg    Config[Q, E, T]
	logger *logrus.Entry

	mu     sync.RWMutex
	state  Snapshot[T]
	opened bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a channel. It does nothing until Open is called.
func New[Q, E, T any](cfg Config[Q, E, T]) *Channel[Q, E, T] {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("channel")
	}
	if cfg.BackOff == nil {
		cfg.BackOff = defaultBackOff
	}
	if cfg.Notify == nil {
		cfg.Notify = func() {}
	}
	return &Channel[Q, E, T]{
		cfg:    cfg,
		logger: cfg.Logger.WithField("channel", cfg.Label),
		state:  Snapshot[T]{Label: cfg.Label},
		done:   make(chan struct{}),
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	return b
}

// Label returns the channel label.
func (c *Channel[Q, E, T]) Label() string { return c.cfg.Label }

// Open begins the initial fetch. The channel runs until ctx is cancelled or
// Close is called.
func (c *Channel[Q, E, T]) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Closed {
		c.mu.Unlock()
		return errors.Closed(c.cfg.Label)
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.opened = true
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Debug("Opening channel")
	go c.run(runCtx)
	return nil
}

// Close releases the subscription and waits for the channel goroutine to
// exit. Current fails with CLOSED afterwards.
func (c *Channel[Q, E, T]) Close() error {
	c.mu.Lock()
	if c.state.Closed {
		c.mu.Unlock()
		return nil
	}
	c.state.Closed = true
	c.state.Live = false
	cancel, opened := c.cancel, c.opened
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if opened {
		<-c.done
	}
	c.logger.Debug("Channel closed")
	c.cfg.Notify()
	return nil
}

// Current returns the materialized value. It fails with NOT_READY until the
// first snapshot is fetched and with CLOSED after Close.
func (c *Channel[Q, E, T]) Current() (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero T
	if c.state.Closed {
		return zero, errors.Closed(c.cfg.Label)
	}
	if !c.state.Ready {
		return zero, errors.NotReady(c.cfg.Label)
	}
	return c.state.Value, nil
}

// Live reports whether the subscription is currently delivering events.
func (c *Channel[Q, E, T]) Live() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Live
}

// Snapshot returns a copy of the channel state.
func (c *Channel[Q, E, T]) Snapshot() Snapshot[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Channel[Q, E, T]) sequenced() bool {
	return c.cfg.SnapshotSeq != nil && c.cfg.EventSeq != nil
}

func (c *Channel[Q, E, T]) run(ctx context.Context) {
	defer close(c.done)
	b := c.cfg.BackOff()

	for {
		err := c.session(ctx, b)
		if ctx.Err() != nil {
			return
		}
		c.interrupted(err)

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = 10 * time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one fetch, subscribe and apply cycle. It returns the reason
// the cycle ended.
func (c *Channel[Q, E, T]) session(ctx context.Context, b backoff.BackOff) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q, err := c.cfg.Source.Fetch(sessCtx)
	if err != nil {
		return errors.FetchFailed(c.cfg.Label, err)
	}
	c.install(q)

	events, err := c.cfg.Source.Subscribe(sessCtx)
	if err != nil {
		return errors.StreamInterrupted(c.cfg.Label, err)
	}
	if err := c.catchUp(sessCtx); err != nil {
		return err
	}
	c.setLive()
	b.Reset()

	for {
		select {
		case <-sessCtx.Done():
			return sessCtx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.StreamInterrupted(c.cfg.Label, nil)
			}
			if err := c.apply(ev); err != nil {
				return err
			}
		}
	}
}

func (c *Channel[Q, E, T]) install(q Q) {
	value := c.cfg.Select(q)

	c.mu.Lock()
	c.state.Value = value
	c.state.Ready = true
	c.state.Err = nil
	if c.sequenced() {
		c.state.Seq = c.cfg.SnapshotSeq(q)
	}
	seq := c.state.Seq
	c.mu.Unlock()

	c.logger.WithField("seq", seq).Debug("Snapshot installed")
	c.cfg.Notify()
}

// catchUp replaces the installed snapshot with a fresh one if the source
// moved on between the fetch and the subscription. Events already queued on
// the stream are then dropped as stale or applied on top of it.
func (c *Channel[Q, E, T]) catchUp(ctx context.Context) error {
	if !c.cfg.CatchUp || !c.sequenced() {
		return nil
	}
	q, err := c.cfg.Source.Fetch(ctx)
	if err != nil {
		return errors.FetchFailed(c.cfg.Label, err)
	}

	c.mu.RLock()
	last := c.state.Seq
	c.mu.RUnlock()
	head := c.cfg.SnapshotSeq(q)
	if head <= last {
		return nil
	}

	c.logger.WithFields(logrus.Fields{"seq": head, "last": last}).Debug("Source moved on before subscribing")
	c.mu.Lock()
	c.state.Resyncs++
	c.mu.Unlock()
	c.install(q)
	return nil
}

func (c *Channel[Q, E, T]) setLive() {
	c.mu.Lock()
	c.state.Live = true
	c.mu.Unlock()
	c.cfg.Notify()
}

func (c *Channel[Q, E, T]) interrupted(err error) {
	c.mu.Lock()
	c.state.Live = false
	c.state.Err = err
	if c.state.Ready {
		c.state.Resyncs++
	}
	c.mu.Unlock()

	c.logger.WithError(err).WithField("code", errors.GetCode(err)).Warn("Channel interrupted, resyncing")
	c.cfg.Notify()
}

// apply folds one event into the value. Only the channel goroutine calls it,
// so the read-modify-write below cannot race with another apply.
func (c *Channel[Q, E, T]) apply(ev E) error {
	c.mu.RLock()
	current, last := c.state.Value, c.state.Seq
	c.mu.RUnlock()

	var seq uint64
	if c.sequenced() {
		seq = c.cfg.EventSeq(ev)
		switch {
		case seq <= last:
			c.mu.Lock()
			c.state.Stale++
			c.mu.Unlock()
			c.logger.WithFields(logrus.Fields{"seq": seq, "last": last}).Debug("Dropping stale event")
			return nil
		case seq > last+1:
			return errors.StreamInterrupted(c.cfg.Label,
				fmt.Errorf("sequence gap: expected %d, got %d", last+1, seq))
		}
	}

	next, err := c.safeApply(current, ev)
	if err != nil {
		c.mu.Lock()
		c.state.Discarded++
		if c.sequenced() {
			c.state.Seq = seq
		}
		c.mu.Unlock()
		c.logger.WithError(errors.MalformedEvent(c.cfg.Label, err)).WithField("seq", seq).Warn("Discarding event")
		c.cfg.Notify()
		return nil
	}

	c.mu.Lock()
	c.state.Value = next
	c.state.Applied++
	if c.sequenced() {
		c.state.Seq = seq
	}
	c.mu.Unlock()
	c.cfg.Notify()
	return nil
}

func (c *Channel[Q, E, T]) safeApply(current T, ev E) (next T, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = current
			err = fmt.Errorf("apply panicked: %v", r)
		}
	}()
	return c.cfg.Apply(current, ev)
}
