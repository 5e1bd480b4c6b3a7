// File: facade/manager.go
// Unified facade layer for hioload-transfer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Manager aggregates the components needed to run asynchronous transfers: a
// worker executor, the epoll reactor, metrics and debug probes, and one
// MultiAdapter bound to the reactor. Configuration is immutable per run.

package facade

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-transfer/adapters"
	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/reactor"
	"github.com/momentics/hioload-transfer/transfer"
)

// Config holds parameters immutable per run.
type Config struct {
	NumWorkers      int           // Number of executor worker goroutines
	MaxEvents       int           // Number of readiness events per poll
	PollTimeout     time.Duration // Upper bound of one poll wait
	ShutdownTimeout time.Duration // Bound applied by Close

	Logger     *zap.Logger           // nil disables logging
	Registerer prometheus.Registerer // nil keeps metrics unregistered

	// Reactor, when set, is used instead of an owned epoll reactor. The
	// manager neither runs nor closes it.
	Reactor api.Reactor
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		NumWorkers:      4,
		MaxEvents:       128,
		PollTimeout:     100 * time.Millisecond,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Manager is the main facade type.
type Manager struct {
	config  *Config
	log     *zap.Logger
	exec    *adapters.ExecutorAdapter
	reactor api.Reactor
	owned   *reactor.Reactor
	control *adapters.ControlAdapter
	adapter *adapters.MultiAdapter

	mu      sync.Mutex
	started bool
	stopRun context.CancelFunc
	runErr  chan error
	closed  bool
}

// Ensure compliance with api.GracefulShutdown.
var _ api.GracefulShutdown = (*Manager)(nil)

// New builds a manager driving engine. Call Start to begin polling when the
// manager owns its reactor.
func New(engine api.Engine, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{config: cfg, log: log.Named("manager"), reactor: cfg.Reactor}

	ctrl, err := adapters.NewControlAdapter(cfg.Registerer)
	if err != nil {
		return nil, err
	}
	m.control = ctrl

	if m.reactor == nil {
		m.exec = adapters.NewExecutorAdapter(cfg.NumWorkers)
		r, err := reactor.New(reactor.Config{
			Workers:     cfg.NumWorkers,
			MaxEvents:   cfg.MaxEvents,
			PollTimeout: cfg.PollTimeout,
		}, reactor.WithLogger(log), reactor.WithExecutor(m.exec))
		if err != nil {
			m.exec.Close()
			return nil, err
		}
		m.owned, m.reactor = r, r
		ctrl.RegisterDebugProbe("executor", func() any { return m.exec.Stats() })
	}

	a, err := adapters.NewMultiAdapter(m.reactor, engine,
		adapters.WithLogger(log), adapters.WithMetrics(ctrl.Metrics()))
	if err != nil {
		return nil, multierr.Append(err, m.closeReactor())
	}
	m.adapter = a
	ctrl.Watch(a)
	return m, nil
}

// Start runs the owned reactor in the background. Subsequent calls have no
// effect.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return api.ErrClosed
	}
	if m.started || m.owned == nil {
		m.started = true
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopRun = cancel
	m.runErr = make(chan error, 1)
	go func() { m.runErr <- m.owned.Run(ctx) }()
	m.started = true
	m.log.Debug("started", zap.Int("workers", m.exec.NumWorkers()))
	return nil
}

// Execute submits h; onComplete receives its outcome on the adapter strand.
func (m *Manager) Execute(h *transfer.Handle, onComplete adapters.CompletionFunc) adapters.Token {
	return m.adapter.Submit(h, onComplete)
}

// Cancel withdraws a submission. onRemoved may be nil.
func (m *Manager) Cancel(tok adapters.Token, onRemoved func(*transfer.Handle, error)) {
	m.adapter.Remove(tok, onRemoved)
}

// Do submits h and returns a handle to wait for or cancel the transfer.
func (m *Manager) Do(h *transfer.Handle) *Call {
	c := &Call{m: m, done: make(chan struct{})}
	c.token = m.adapter.Submit(h, c.finish)
	return c
}

// Adapter returns the underlying multi adapter.
func (m *Manager) Adapter() *adapters.MultiAdapter { return m.adapter }

// Control returns the diagnostics interface.
func (m *Manager) Control() api.Control { return m.control }

// DumpState returns the output of every debug probe.
func (m *Manager) DumpState() map[string]any { return m.control.Stats() }

// Close shuts down within Config.ShutdownTimeout.
func (m *Manager) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ShutdownTimeout)
	defer cancel()
	return m.Shutdown(ctx)
}

// Shutdown implements api.GracefulShutdown. The adapter is torn down first so
// that no engine callback reaches a stopped reactor.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.adapter.Shutdown(ctx)
	return multierr.Append(err, m.closeReactor())
}

func (m *Manager) closeReactor() error {
	if m.owned == nil {
		return nil
	}
	if m.stopRun != nil {
		m.stopRun()
	}
	err := m.owned.Close()
	if m.runErr != nil {
		if rerr := <-m.runErr; !errors.Is(rerr, api.ErrClosed) {
			err = multierr.Append(err, rerr)
		}
	}
	m.exec.Close()
	return err
}

// Call is one transfer submitted through Do.
type Call struct {
	m     *Manager
	token adapters.Token

	once sync.Once
	done chan struct{}
	err  error
}

var _ api.Cancelable = (*Call)(nil)

func (c *Call) finish(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Token returns the submission token.
func (c *Call) Token() adapters.Token { return c.token }

// Done is closed once the transfer completed or was cancelled.
func (c *Call) Done() <-chan struct{} { return c.done }

// Err returns the transfer outcome; context.Canceled after Cancel.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Cancel withdraws the transfer. It returns immediately; Done is closed once
// the cancellation took effect.
func (c *Call) Cancel() error {
	c.m.adapter.Remove(c.token, func(_ *transfer.Handle, err error) {
		if err == nil {
			c.finish(context.Canceled)
		}
	})
	return nil
}

// Wait blocks until the call is done or ctx expires.
func (c *Call) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
