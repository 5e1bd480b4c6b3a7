// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral part of the reactor: configuration, task posting, strands,
// timers and the poll loop lifetime.

package reactor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/internal/concurrency"
)

// ErrRunning is returned by Run when another Run is active.
var ErrRunning = errors.New("reactor: already running")

// Config holds reactor parameters.
type Config struct {
	Workers     int           // executor goroutines; <= 0 means runtime.NumCPU()
	MaxEvents   int           // epoll batch size
	PollTimeout time.Duration // upper bound of one epoll wait
}

// DefaultConfig returns default reactor parameters.
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		MaxEvents:   128,
		PollTimeout: 100 * time.Millisecond,
	}
}

// Option customizes a Reactor.
type Option func(*Reactor)

// WithLogger sets the reactor logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.log = l.Named("reactor")
		}
	}
}

// WithClock replaces the wall clock used by timers.
func WithClock(c clock.Clock) Option {
	return func(r *Reactor) { r.clock = c }
}

// WithExecutor runs posted tasks on exec instead of an owned executor. The
// reactor does not close it.
func WithExecutor(exec api.Executor) Option {
	return func(r *Reactor) { r.exec = exec }
}

// Reactor implements api.Reactor.
type Reactor struct {
	cfg    Config
	log    *zap.Logger
	clock  clock.Clock
	exec   api.Executor
	owned  *concurrency.Executor
	poller *poller

	loop   sync.Mutex // held by Run
	closed atomic.Bool
}

var _ api.Reactor = (*Reactor)(nil)

// New creates a reactor. Call Run to start dispatching socket readiness.
func New(cfg Config, opts ...Option) (*Reactor, error) {
	def := DefaultConfig()
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}
	r := &Reactor{cfg: cfg, log: zap.NewNop(), clock: clock.New()}
	for _, opt := range opts {
		opt(r)
	}
	p, err := newPoller(cfg.MaxEvents, r.log)
	if err != nil {
		return nil, err
	}
	r.poller = p
	if r.exec == nil {
		r.owned = concurrency.NewExecutor(cfg.Workers)
		r.exec = r.owned
	}
	return r, nil
}

// Post implements api.Reactor. Tasks posted after Close are dropped.
func (r *Reactor) Post(task func()) {
	if err := r.exec.Submit(task); err != nil {
		r.log.Debug("post dropped", zap.Error(err))
	}
}

// NewStrand implements api.Reactor.
func (r *Reactor) NewStrand() api.Strand {
	return concurrency.NewStrand(r.exec)
}

// NewTimer implements api.Reactor.
func (r *Reactor) NewTimer() api.Timer {
	return &timer{clock: r.clock}
}

// OpenSocket implements api.Reactor.
func (r *Reactor) OpenSocket(family api.Family) (api.Socket, error) {
	if r.closed.Load() {
		return nil, api.ErrClosed
	}
	return r.poller.open(family)
}

// Run dispatches socket readiness until ctx is done or the reactor is closed.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.loop.TryLock() {
		if r.closed.Load() {
			return api.ErrClosed
		}
		return ErrRunning
	}
	defer r.loop.Unlock()
	if r.closed.Load() {
		return api.ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return r.poller.wake()
	})
	g.Go(func() error {
		defer cancel()
		for ctx.Err() == nil && !r.closed.Load() {
			if err := r.poller.wait(r.cfg.PollTimeout); err != nil {
				r.log.Error("poll", zap.Error(err))
				return err
			}
		}
		return nil
	})
	return g.Wait()
}

// Close stops Run, releases the poller and, when owned, drains and stops the
// executor. Close must not be called from a reactor task.
func (r *Reactor) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := r.poller.wake()
	r.loop.Lock()
	defer r.loop.Unlock()
	err = multierr.Append(err, r.poller.close())
	if r.owned != nil {
		r.owned.Close()
	}
	return err
}

// timer is a re-armable api.Timer. A fire that races with Reset or Stop is
// suppressed.
type timer struct {
	clock clock.Clock

	mu  sync.Mutex
	t   *clock.Timer
	gen uint64
}

func (t *timer) Reset(d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Stop()
	}
	t.gen++
	gen := t.gen
	t.t = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if gen != t.gen {
			t.mu.Unlock()
			return
		}
		t.t = nil
		t.mu.Unlock()
		fn()
	})
}

func (t *timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t == nil {
		return false
	}
	t.gen++
	t.t.Stop()
	t.t = nil
	return true
}
