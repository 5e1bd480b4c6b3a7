// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface of the host reactor the transfer adapter is
// driven by: a posting queue, serialized strands, millisecond timers and
// reactor-owned sockets with readiness notifications.

package api

import "time"

// EventMask is a set of socket readiness conditions.
type EventMask uint8

const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventError
)

func (m EventMask) String() string {
	switch m & (EventRead | EventWrite) {
	case EventRead:
		return "in"
	case EventWrite:
		return "out"
	case EventRead | EventWrite:
		return "in/out"
	}
	return "none"
}

// Family selects the address family of a stream socket.
type Family int

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	}
	return "unspec"
}

// ReadinessFunc receives the readiness conditions observed for a socket.
type ReadinessFunc func(events EventMask)

// Socket is a reactor-owned OS socket.
type Socket interface {
	// Fd returns the native descriptor.
	Fd() SocketID

	// Watch adds interest in events; handler replaces any previous handler.
	Watch(events EventMask, handler ReadinessFunc) error

	// Unwatch drops interest in events.
	Unwatch(events EventMask) error

	// Close drops all interest and releases the descriptor.
	Close() error
}

// Timer is a single re-armable millisecond timer.
type Timer interface {
	// Reset cancels any pending expiry and arms the timer to call fn after d.
	Reset(d time.Duration, fn func())

	// Stop cancels a pending expiry. Reports whether one was pending.
	Stop() bool
}

// Strand runs posted tasks one at a time, in posting order.
type Strand interface {
	Post(task func())
}

// Reactor defines the common interface for an event-loop that dispatches I/O
// events, timers and posted work.
type Reactor interface {
	// Post schedules task to run eventually on any reactor worker.
	Post(task func())

	// NewStrand returns a new serialized execution context.
	NewStrand() Strand

	// NewTimer returns a new disarmed timer.
	NewTimer() Timer

	// OpenSocket creates a non-blocking stream socket of the given family.
	OpenSocket(family Family) (Socket, error)
}
