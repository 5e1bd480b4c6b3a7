// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/momentics/hioload-transfer/api"
)

// Reactor is a manually stepped api.Reactor. Posted work, strand work and
// fired timers all land in one FIFO that only runs when the test calls
// RunPending, so every interleaving is deterministic.
type Reactor struct {
	mu sync.Mutex

	// Clock drives timer deadlines; advance it with Advance.
	Clock *clock.Mock

	// OpenErr, when set, makes OpenSocket fail.
	OpenErr error

	tasks   []func()
	timers  []*Timer
	sockets map[api.SocketID]*Socket
	nextFd  api.SocketID
}

// NewReactor returns an idle reactor with a mock clock.
func NewReactor() *Reactor {
	return &Reactor{
		Clock:   clock.NewMock(),
		sockets: make(map[api.SocketID]*Socket),
		nextFd:  100,
	}
}

// Post implements api.Reactor.
func (r *Reactor) Post(task func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

// NewStrand implements api.Reactor. Strands share the reactor FIFO.
func (r *Reactor) NewStrand() api.Strand {
	return strand{r: r}
}

// NewTimer implements api.Reactor.
func (r *Reactor) NewTimer() api.Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &Timer{r: r}
	r.timers = append(r.timers, t)
	return t
}

// OpenSocket implements api.Reactor.
func (r *Reactor) OpenSocket(family api.Family) (api.Socket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	if family != api.FamilyIPv4 && family != api.FamilyIPv6 {
		return nil, fmt.Errorf("open socket: unsupported family %s", family)
	}
	fd := r.nextFd
	r.nextFd++
	s := &Socket{fd: fd, Family: family}
	r.sockets[fd] = s
	return s, nil
}

// Socket returns the socket opened with descriptor fd.
func (r *Reactor) Socket(fd api.SocketID) *Socket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sockets[fd]
}

// Sockets returns every socket opened so far.
func (r *Reactor) Sockets() []*Socket {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Socket, 0, len(r.sockets))
	for _, s := range r.sockets {
		out = append(out, s)
	}
	return out
}

// Pending reports the number of queued tasks.
func (r *Reactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// RunOne runs the oldest queued task. Reports whether one ran.
func (r *Reactor) RunOne() bool {
	r.mu.Lock()
	if len(r.tasks) == 0 {
		r.mu.Unlock()
		return false
	}
	task := r.tasks[0]
	r.tasks = r.tasks[1:]
	r.mu.Unlock()
	task()
	return true
}

// RunPending runs queued tasks, including ones they queue, until none are
// left. It returns the number of tasks run.
func (r *Reactor) RunPending() int {
	n := 0
	for r.RunOne() {
		n++
	}
	return n
}

// Advance moves the mock clock forward and fires every timer that became due.
func (r *Reactor) Advance(d time.Duration) {
	r.Clock.Add(d)
	now := r.Clock.Now()
	r.mu.Lock()
	var due []func()
	for _, t := range r.timers {
		if t.armed && !t.deadline.After(now) {
			t.armed = false
			due = append(due, t.fn)
		}
	}
	r.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

type strand struct{ r *Reactor }

func (s strand) Post(task func()) { s.r.Post(task) }

// Timer is a fake api.Timer bound to the reactor's mock clock.
type Timer struct {
	r        *Reactor
	armed    bool
	deadline time.Time
	fn       func()
}

// Reset implements api.Timer.
func (t *Timer) Reset(d time.Duration, fn func()) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.armed = true
	t.deadline = t.r.Clock.Now().Add(d)
	t.fn = fn
}

// Stop implements api.Timer.
func (t *Timer) Stop() bool {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	was := t.armed
	t.armed = false
	return was
}

// Armed reports whether the timer is pending and its remaining duration.
func (t *Timer) Armed() (bool, time.Duration) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	return t.armed, t.deadline.Sub(t.r.Clock.Now())
}

// Timers returns every timer created so far.
func (r *Reactor) Timers() []*Timer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Timer(nil), r.timers...)
}

var errSocketClosed = errors.New("socket closed")

// Socket is a fake api.Socket recording interest changes.
type Socket struct {
	mu sync.Mutex

	fd       api.SocketID
	Family   api.Family
	interest api.EventMask
	handler  api.ReadinessFunc
	closed   bool
	ops      []string
}

// Fd implements api.Socket.
func (s *Socket) Fd() api.SocketID { return s.fd }

// Watch implements api.Socket.
func (s *Socket) Watch(events api.EventMask, handler api.ReadinessFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	s.interest |= events
	s.handler = handler
	s.ops = append(s.ops, "watch "+events.String())
	return nil
}

// Unwatch implements api.Socket.
func (s *Socket) Unwatch(events api.EventMask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	s.interest &^= events
	s.ops = append(s.ops, "unwatch "+events.String())
	return nil
}

// Close implements api.Socket.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSocketClosed
	}
	s.closed = true
	s.interest = 0
	s.handler = nil
	return nil
}

// Interest returns the conditions currently watched.
func (s *Socket) Interest() api.EventMask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interest
}

// Closed reports whether the socket was closed.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Ops returns the recorded watch/unwatch calls.
func (s *Socket) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// Ready reports readiness like the reactor's poll loop would. Conditions not
// watched are filtered out, except EventError. Reports whether the handler ran.
func (s *Socket) Ready(events api.EventMask) bool {
	s.mu.Lock()
	h := s.handler
	mask := events & (s.interest | api.EventError)
	watched := s.interest != 0
	s.mu.Unlock()
	if h == nil || !watched || mask == 0 {
		return false
	}
	h(mask)
	return true
}
