// Package domstream wraps a DOM mutation observer as a restartable lazy
// sequence of mutation batches, optionally gated by start/stop predicates.
package domstream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/webrecorder/autobrowser/wait"
)

// ErrDone is returned by Next when the stream has terminated normally:
// the stop predicate became true, or the start predicate failed at
// subscribe time. It is not an error condition for the caller.
var ErrDone = errors.New("domstream: no more mutations")

// errBusy reports a reentrant Next call, which the contract forbids: there
// is at most one pending mutation waiter per stream.
var errBusy = errors.New("domstream: concurrent Next call")

// Batch summarizes one mutation observer delivery.
type Batch struct {
	// AddedNodes is the total number of nodes added across all records.
	AddedNodes int

	// RemovedNodes is the total number of nodes removed across all records.
	RemovedNodes int

	// Records is the number of mutation records in the delivery.
	Records int
}

// Source owns exactly one underlying mutation observer. Implementations must
// make Disconnect idempotent and must release the observer on every call.
type Source interface {
	// Observe installs the observer. Calling it twice without an
	// intervening Disconnect is a bug.
	Observe(ctx context.Context) error

	// Drain returns all batches delivered since the previous Drain,
	// possibly none.
	Drain(ctx context.Context) ([]Batch, error)

	// Disconnect releases the observer. Safe to call repeatedly.
	Disconnect() error
}

// Config tunes a Stream.
type Config struct {
	// DrainInterval is the cadence at which the source buffer is polled
	// while awaiting the next mutation. Default: 100ms.
	DrainInterval time.Duration

	// StopPollInterval is the cadence at which Stop is polled while a
	// mutation wait is suspended. Default: 1.5s.
	StopPollInterval time.Duration

	// Start gates subscription: when it reports false at first Next, the
	// stream terminates immediately without observing anything. Nil means
	// always start.
	Start func(ctx context.Context) (bool, error)

	// Stop ends the stream: while awaiting a mutation it is polled at
	// StopPollInterval, and the wait resolves with ErrDone the moment it
	// reports true. Nil means the stream only ends by Disconnect or ctx.
	Stop func(ctx context.Context) (bool, error)
}

func (c *Config) defaults() {
	if c.DrainInterval <= 0 {
		c.DrainInterval = 100 * time.Millisecond
	}
	if c.StopPollInterval <= 0 {
		c.StopPollInterval = 1500 * time.Millisecond
	}
}

// Stream is a lazy sequence of mutation batches. It is restartable per call
// site but not concurrently reusable: Next must not be called again while a
// previous call is pending.
//
// Every termination branch (normal completion, predicate failure, error,
// external Disconnect) releases the underlying observer exactly once.
type Stream struct {
	src     Source
	cfg     Config
	queue   []Batch
	started bool
	busy    atomic.Bool
	closed  atomic.Bool
}

// New creates a Stream over src. The observer is not installed until the
// first Next call.
func New(src Source, cfg Config) *Stream {
	cfg.defaults()
	return &Stream{src: src, cfg: cfg}
}

// Predicated creates a Stream gated by start/stop predicates: start is
// consulted once at subscribe time and aborts the stream empty when false;
// stop is polled while awaiting mutations and ends the stream the moment it
// reports true. Either predicate may be nil.
func Predicated(src Source, start, stop func(ctx context.Context) (bool, error)) *Stream {
	return New(src, Config{Start: start, Stop: stop})
}

// Next returns the next mutation batch. It returns ErrDone when the stream
// has terminated normally and a non-nil error on failure; in both cases the
// observer has been disconnected.
func (s *Stream) Next(ctx context.Context) (*Batch, error) {
	if s.closed.Load() {
		return nil, ErrDone
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, errBusy
	}
	defer s.busy.Store(false)

	if !s.started {
		if err := s.subscribe(ctx); err != nil {
			return nil, err
		}
	}

	if batch, ok := s.pop(); ok {
		return batch, nil
	}

	if s.cfg.Stop == nil {
		if err := s.awaitBatch(ctx); err != nil {
			s.fail()
			return nil, err
		}
		batch, _ := s.pop()
		return batch, nil
	}

	// Race "a mutation arrived" against "the stop condition became true".
	// wait.First cancels the loser before returning, so the stop poller
	// never outlives the wait. The batch arm only fills the queue; popping
	// happens after the race so a batch drained by a losing arm is not lost.
	_, idx, err := wait.First(ctx, s.raceBatch, s.raceStop)
	if err != nil {
		s.fail()
		return nil, err
	}
	if idx == 1 {
		_ = s.Disconnect()
		return nil, ErrDone
	}
	batch, ok := s.pop()
	if !ok {
		_ = s.Disconnect()
		return nil, ErrDone
	}
	return batch, nil
}

// Disconnect releases the observer. Idempotent; the stream yields ErrDone
// afterwards.
func (s *Stream) Disconnect() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.src.Disconnect()
}

func (s *Stream) subscribe(ctx context.Context) error {
	if s.cfg.Start != nil {
		ok, err := s.cfg.Start(ctx)
		if err != nil {
			s.fail()
			return err
		}
		if !ok {
			// Aborted before observing: nothing was installed, but the
			// stream is spent.
			_ = s.Disconnect()
			return ErrDone
		}
	}
	if err := s.src.Observe(ctx); err != nil {
		s.fail()
		return err
	}
	s.started = true
	return nil
}

// awaitBatch polls the source buffer until at least one batch is queued.
func (s *Stream) awaitBatch(ctx context.Context) error {
	return wait.Poll(ctx, s.cfg.DrainInterval, func(ctx context.Context) (bool, error) {
		batches, err := s.src.Drain(ctx)
		if err != nil {
			return false, err
		}
		s.queue = append(s.queue, batches...)
		return len(s.queue) > 0, nil
	})
}

func (s *Stream) raceBatch(ctx context.Context) (struct{}, error) {
	return struct{}{}, s.awaitBatch(ctx)
}

func (s *Stream) raceStop(ctx context.Context) (struct{}, error) {
	return struct{}{}, wait.Poll(ctx, s.cfg.StopPollInterval, s.cfg.Stop)
}

func (s *Stream) pop() (*Batch, bool) {
	if len(s.queue) == 0 {
		return nil, false
	}
	batch := s.queue[0]
	s.queue = s.queue[1:]
	return &batch, true
}

// fail tears the stream down on an error path.
func (s *Stream) fail() {
	_ = s.Disconnect()
}
