// File: adapters/multi_adapter.go
// Package adapters bridges the transfer engine's multiplexer to a reactor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MultiAdapter drives one engine multiplexer from reactor readiness and timer
// events. Every piece of adapter state is confined to one strand: public entry
// points that may be called from anywhere post onto it, and the in-context
// variants (AddHandle, RemoveHandle, Clear) must only be called from a task
// already running on it.

package adapters

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/control"
	"github.com/momentics/hioload-transfer/multi"
	"github.com/momentics/hioload-transfer/transfer"
)

// Token identifies one submission. The zero Token identifies nothing.
type Token struct{ id uuid.UUID }

func newToken() Token { return Token{id: uuid.New()} }

// String implements fmt.Stringer.
func (t Token) String() string { return t.id.String() }

// IsZero reports whether t is the zero Token.
func (t Token) IsZero() bool { return t.id == uuid.Nil }

// CompletionFunc receives the outcome of a transfer: nil on success, a
// *api.TransferError for a failed transfer, or the error that prevented or
// aborted its registration.
type CompletionFunc func(err error)

// Option configures a MultiAdapter.
type Option func(*MultiAdapter)

// WithLogger sets the adapter logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *MultiAdapter) {
		if l != nil {
			a.log = l.Named("adapter")
		}
	}
}

// WithMetrics records adapter activity into m.
func WithMetrics(m *control.Metrics) Option {
	return func(a *MultiAdapter) { a.metrics = m }
}

// Stats is a point-in-time snapshot of adapter counters.
type Stats struct {
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Cancelled     int64 `json:"cancelled"`
	Pending       int64 `json:"pending"`
	SocketActions int64 `json:"socket_actions"`
	OpenSockets   int64 `json:"open_sockets"`
	Closed        bool  `json:"closed"`
}

// pending is the completion record of one registered transfer.
type pending struct {
	token      Token
	handle     *transfer.Handle
	onComplete CompletionFunc
	// done is set once the callback ran or was discarded.
	done bool
}

// watched is a reactor socket handed to the engine.
type watched struct {
	fd       api.SocketID
	sock     api.Socket
	interest api.EventMask
	// ready accumulates readiness reported since the last posted action.
	ready   atomic.Uint32
	handler api.ReadinessFunc
}

// MultiAdapter owns a multi.Multi and the reactor resources the engine uses.
type MultiAdapter struct {
	reactor api.Reactor
	strand  api.Strand
	timer   api.Timer
	multi   *multi.Multi
	log     *zap.Logger
	metrics *control.Metrics

	// strand-confined
	sockets   map[api.SocketID]*watched
	callbacks map[*transfer.Handle]*pending
	tokens    map[Token]*pending
	timerGen  uint64
	fault     error
	closed    bool

	submitted     atomic.Int64
	completed     atomic.Int64
	cancelled     atomic.Int64
	socketActions atomic.Int64
	openSockets   atomic.Int64
	isClosed      atomic.Bool
}

// NewMultiAdapter allocates a multiplexer from engine and routes its timer and
// socket callbacks to reactor.
func NewMultiAdapter(reactor api.Reactor, engine api.Engine, opts ...Option) (*MultiAdapter, error) {
	m, err := multi.New(engine)
	if err != nil {
		return nil, err
	}
	a := &MultiAdapter{
		reactor:   reactor,
		strand:    reactor.NewStrand(),
		timer:     reactor.NewTimer(),
		multi:     m,
		log:       zap.NewNop(),
		sockets:   make(map[api.SocketID]*watched),
		callbacks: make(map[*transfer.Handle]*pending),
		tokens:    make(map[Token]*pending),
	}
	for _, opt := range opts {
		opt(a)
	}
	err = multierr.Combine(
		m.SetOption(api.MOptTimerFunction, api.TimerFunc(onTimer)),
		m.SetOption(api.MOptTimerData, a),
		m.SetOption(api.MOptSocketFunction, api.SocketFunc(onSocket)),
		m.SetOption(api.MOptSocketData, a),
	)
	if err != nil {
		return nil, multierr.Append(err, m.Close())
	}
	return a, nil
}

// Submit registers h asynchronously and returns its token. onComplete runs on
// the adapter strand exactly once, unless the submission is cancelled first.
// A handle that is already registered is left as is and the duplicate
// submission is ignored.
func (a *MultiAdapter) Submit(h *transfer.Handle, onComplete CompletionFunc) Token {
	tok := newToken()
	a.strand.Post(func() { a.submit(tok, h, onComplete) })
	return tok
}

func (a *MultiAdapter) submit(tok Token, h *transfer.Handle, onComplete CompletionFunc) {
	if _, ok := a.callbacks[h]; ok {
		a.log.Debug("duplicate submit ignored", zap.Stringer("handle", h.ID()))
		return
	}
	if err := a.add(tok, h, onComplete); err != nil {
		a.log.Debug("submit failed", zap.Stringer("token", tok), zap.Error(err))
		if onComplete != nil {
			a.strand.Post(func() { onComplete(err) })
		}
	}
}

// AddHandle registers h from within the adapter strand. Adding a handle that
// is already registered returns its existing token.
func (a *MultiAdapter) AddHandle(h *transfer.Handle, onComplete CompletionFunc) (Token, error) {
	if p, ok := a.callbacks[h]; ok {
		return p.token, nil
	}
	tok := newToken()
	if err := a.add(tok, h, onComplete); err != nil {
		return Token{}, err
	}
	return tok, nil
}

func (a *MultiAdapter) add(tok Token, h *transfer.Handle, onComplete CompletionFunc) error {
	if a.closed {
		return api.ErrClosed
	}
	if a.fault != nil {
		return a.fault
	}
	if err := h.SetSocketHooks(onOpenSocket, onCloseSocket, a); err != nil {
		return multierr.Append(err, h.ClearSocketHooks())
	}
	if err := a.multi.Add(h); err != nil {
		return multierr.Append(err, h.ClearSocketHooks())
	}
	p := &pending{token: tok, handle: h, onComplete: onComplete}
	a.callbacks[h] = p
	a.tokens[tok] = p
	a.submitted.Add(1)
	a.metrics.TransferSubmitted()
	a.log.Debug("transfer added", zap.Stringer("token", tok), zap.Stringer("handle", h.ID()))
	return nil
}

// Remove cancels the submission identified by tok on the adapter strand. Its
// completion callback never runs afterwards. onRemoved, when not nil, receives
// the handle, or api.ErrNotFound when tok is unknown or already finished.
func (a *MultiAdapter) Remove(tok Token, onRemoved func(*transfer.Handle, error)) {
	a.strand.Post(func() {
		h, err := a.removeToken(tok)
		if onRemoved != nil {
			onRemoved(h, err)
		}
	})
}

func (a *MultiAdapter) removeToken(tok Token) (*transfer.Handle, error) {
	p, ok := a.tokens[tok]
	if !ok {
		return nil, api.ErrNotFound
	}
	if a.callbacks[p.handle] != p {
		// Completion already scheduled; discard it.
		p.done = true
		delete(a.tokens, tok)
		return p.handle, nil
	}
	return p.handle, a.cancel(p)
}

// RemoveHandle cancels h from within the adapter strand.
func (a *MultiAdapter) RemoveHandle(h *transfer.Handle) error {
	p, ok := a.callbacks[h]
	if !ok {
		return api.ErrNotFound
	}
	return a.cancel(p)
}

func (a *MultiAdapter) cancel(p *pending) error {
	p.done = true
	delete(a.tokens, p.token)
	delete(a.callbacks, p.handle)
	a.cancelled.Add(1)
	a.metrics.TransfersCancelled(1)
	err := p.handle.ClearSocketHooks()
	_, rerr := a.multi.Remove(p.handle.Raw())
	return multierr.Append(err, rerr)
}

// Clear cancels every submission from within the adapter strand. No pending
// completion callback runs afterwards. Sockets stay open until the engine
// releases them.
func (a *MultiAdapter) Clear() error {
	var err error
	for tok, p := range a.tokens {
		p.done = true
		delete(a.tokens, tok)
	}
	n := len(a.callbacks)
	for h := range a.callbacks {
		err = multierr.Append(err, h.ClearSocketHooks())
		delete(a.callbacks, h)
	}
	err = multierr.Append(err, a.multi.Clear())
	a.cancelled.Add(int64(n))
	a.metrics.TransfersCancelled(n)
	return err
}

// AsyncClear posts Clear. onCleared, when not nil, receives its result.
func (a *MultiAdapter) AsyncClear(onCleared func(error)) {
	a.strand.Post(func() {
		err := a.Clear()
		if onCleared != nil {
			onCleared(err)
		}
	})
}

// AsyncClose posts the adapter teardown: the engine's timer and socket
// callbacks are detached first, then every submission is cancelled, the owned
// sockets are closed and the multiplexer is released.
func (a *MultiAdapter) AsyncClose(onClosed func(error)) {
	a.strand.Post(func() {
		err := a.teardown()
		if onClosed != nil {
			onClosed(err)
		}
	})
}

// Close posts the teardown without waiting for it.
func (a *MultiAdapter) Close() { a.AsyncClose(nil) }

// Shutdown posts the teardown and waits for it or for ctx.
func (a *MultiAdapter) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	a.AsyncClose(func(err error) { done <- err })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *MultiAdapter) teardown() error {
	if a.closed {
		return nil
	}
	err := multierr.Combine(
		a.multi.SetOption(api.MOptTimerFunction, nil),
		a.multi.SetOption(api.MOptTimerData, nil),
		a.multi.SetOption(api.MOptSocketFunction, nil),
		a.multi.SetOption(api.MOptSocketData, nil),
	)
	err = multierr.Append(err, a.Clear())
	a.timerGen++
	a.timer.Stop()
	for fd, w := range a.sockets {
		delete(a.sockets, fd)
		err = multierr.Append(err, w.sock.Close())
		a.openSockets.Add(-1)
		a.metrics.SocketClosed()
	}
	err = multierr.Append(err, a.multi.Close())
	a.closed = true
	a.isClosed.Store(true)
	a.log.Debug("adapter closed", zap.Error(err))
	return err
}

// Stats returns a snapshot of the adapter counters. Safe from any goroutine.
func (a *MultiAdapter) Stats() Stats {
	submitted := a.submitted.Load()
	completed := a.completed.Load()
	cancelled := a.cancelled.Load()
	return Stats{
		Submitted:     submitted,
		Completed:     completed,
		Cancelled:     cancelled,
		Pending:       submitted - completed - cancelled,
		SocketActions: a.socketActions.Load(),
		OpenSockets:   a.openSockets.Load(),
		Closed:        a.isClosed.Load(),
	}
}

// armTimer handles the engine's timer callback.
func (a *MultiAdapter) armTimer(timeoutMS int64) {
	a.timerGen++
	gen := a.timerGen
	if timeoutMS <= 0 {
		a.timer.Stop()
		a.strand.Post(a.onTimeout)
		return
	}
	a.log.Debug("timer armed", zap.Int64("timeout_ms", timeoutMS))
	a.timer.Reset(time.Duration(timeoutMS)*time.Millisecond, func() {
		a.strand.Post(func() {
			if gen == a.timerGen {
				a.onTimeout()
			}
		})
	})
}

func (a *MultiAdapter) onTimeout() {
	a.action(api.SocketTimeout, 0)
}

// openSocket handles the engine's open-socket hook.
func (a *MultiAdapter) openSocket(purpose api.SocketPurpose, family api.Family) api.SocketID {
	if purpose != api.PurposeIPConnection || (family != api.FamilyIPv4 && family != api.FamilyIPv6) {
		return api.SocketBad
	}
	sock, err := a.reactor.OpenSocket(family)
	if err != nil {
		a.log.Warn("open socket", zap.Stringer("family", family), zap.Error(err))
		return api.SocketBad
	}
	fd := sock.Fd()
	if _, dup := a.sockets[fd]; dup {
		panic(fmt.Sprintf("adapters: reactor reused live descriptor %d", fd))
	}
	w := &watched{fd: fd, sock: sock}
	w.handler = func(events api.EventMask) { a.onReady(w, events) }
	a.sockets[fd] = w
	a.openSockets.Add(1)
	a.metrics.SocketOpened()
	a.log.Debug("socket opened", zap.Int("fd", int(fd)), zap.Stringer("family", family))
	return fd
}

// closeSocket handles the engine's close-socket hook. Unknown descriptors are
// ignored.
func (a *MultiAdapter) closeSocket(fd api.SocketID) {
	w, ok := a.sockets[fd]
	if !ok {
		return
	}
	delete(a.sockets, fd)
	if err := w.sock.Close(); err != nil {
		a.log.Warn("close socket", zap.Int("fd", int(fd)), zap.Error(err))
	}
	a.openSockets.Add(-1)
	a.metrics.SocketClosed()
	a.log.Debug("socket closed", zap.Int("fd", int(fd)))
}

// setInterest handles the engine's socket callback by updating the reactor
// registration incrementally.
func (a *MultiAdapter) setInterest(fd api.SocketID, action api.PollAction) {
	w, ok := a.sockets[fd]
	if !ok {
		panic(fmt.Sprintf("adapters: interest %s for unowned descriptor %d", action, fd))
	}
	want := action.Mask()
	dropped := w.interest &^ want
	added := want &^ w.interest
	if dropped != 0 {
		if err := w.sock.Unwatch(dropped); err != nil {
			panic(fmt.Sprintf("adapters: unwatch %s on %d: %v", dropped, fd, err))
		}
	}
	if added != 0 {
		if err := w.sock.Watch(added, w.handler); err != nil {
			panic(fmt.Sprintf("adapters: watch %s on %d: %v", added, fd, err))
		}
	}
	a.log.Debug("interest changed", zap.Int("fd", int(fd)),
		zap.Stringer("from", w.interest), zap.Stringer("to", want))
	w.interest = want
}

// onReady runs on the reactor's poll goroutine. Readiness reported while an
// action for the socket is queued is merged into it.
func (a *MultiAdapter) onReady(w *watched, events api.EventMask) {
	if w.ready.Or(uint32(events)) != 0 {
		return
	}
	a.strand.Post(func() {
		events := api.EventMask(w.ready.Swap(0))
		if a.sockets[w.fd] != w {
			return
		}
		a.action(w.fd, events)
	})
}

// action drives engine progress and dispatches what finished.
func (a *MultiAdapter) action(fd api.SocketID, events api.EventMask) {
	if a.closed || a.fault != nil {
		return
	}
	a.socketActions.Add(1)
	a.metrics.SocketAction()
	if _, err := a.multi.SocketAction(fd, events); err != nil {
		a.failAll(err)
		return
	}
	a.drain()
}

// drain detaches every finished transfer and schedules its callback.
func (a *MultiAdapter) drain() {
	for _, msg := range a.multi.PollCompletionMessages() {
		h := a.multi.Lookup(msg.Transfer)
		if h == nil {
			continue
		}
		a.detach(h)
		p, ok := a.callbacks[h]
		if !ok {
			continue
		}
		var result error
		label := "ok"
		if msg.Result != api.ResultOK {
			terr := api.NewTransferError(msg.Result, a.multi.Engine().Strerror(msg.Result))
			result, label = terr, terr.Kind.String()
		}
		a.log.Debug("transfer finished", zap.Stringer("token", p.token), zap.String("result", label))
		a.metrics.TransferCompleted(label)
		a.dispatch(p, result)
	}
}

// detach drops h's socket hooks and removes it from the multiplexer.
func (a *MultiAdapter) detach(h *transfer.Handle) {
	if err := h.ClearSocketHooks(); err != nil {
		a.log.Error("clear socket hooks", zap.Stringer("handle", h.ID()), zap.Error(err))
	}
	if _, err := a.multi.Remove(h.Raw()); err != nil {
		a.log.Error("remove transfer", zap.Stringer("handle", h.ID()), zap.Error(err))
	}
}

// dispatch detaches p and schedules its callback. The callback is skipped if
// p is cancelled before the scheduled task runs.
func (a *MultiAdapter) dispatch(p *pending, result error) {
	delete(a.callbacks, p.handle)
	a.completed.Add(1)
	a.strand.Post(func() {
		if p.done {
			return
		}
		p.done = true
		delete(a.tokens, p.token)
		if p.onComplete != nil {
			p.onComplete(result)
		}
	})
}

// failAll handles an engine fault: the multiplexer is no longer usable, so
// every registered transfer completes with err and later submissions fail.
func (a *MultiAdapter) failAll(err error) {
	a.log.Error("engine fault", zap.Error(err))
	a.fault = err
	a.timerGen++
	a.timer.Stop()
	for _, p := range a.callbacks {
		a.detach(p.handle)
		a.metrics.TransferCompleted("engine_fault")
		a.dispatch(p, err)
	}
}
