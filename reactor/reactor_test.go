//go:build linux
// +build linux

// File: reactor/reactor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/reactor"
)

const waitFor = 2 * time.Second

func newReactor(t *testing.T, opts ...reactor.Option) *reactor.Reactor {
	t.Helper()
	cfg := reactor.DefaultConfig()
	cfg.Workers = 2
	cfg.PollTimeout = 10 * time.Millisecond
	opts = append([]reactor.Option{reactor.WithLogger(zaptest.NewLogger(t))}, opts...)
	r, err := reactor.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func run(t *testing.T, r *reactor.Reactor) (cancel func(), errc <-chan error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- r.Run(ctx) }()
	return stop, ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		require.FailNow(t, "timed out")
	}
	var zero T
	return zero
}

func TestPost(t *testing.T) {
	r := newReactor(t)
	done := make(chan struct{})
	r.Post(func() { close(done) })
	receive(t, done)
}

func TestStrandKeepsOrder(t *testing.T) {
	r := newReactor(t)
	s := r.NewStrand()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 0; i < 200; i++ {
		s.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 199 {
				close(done)
			}
		})
	}
	receive(t, done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 200)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTimerFires(t *testing.T) {
	mock := clock.NewMock()
	r := newReactor(t, reactor.WithClock(mock))
	tm := r.NewTimer()

	fired := make(chan struct{}, 1)
	tm.Reset(50*time.Millisecond, func() { fired <- struct{}{} })
	mock.Add(50 * time.Millisecond)
	receive(t, fired)
	assert.False(t, tm.Stop(), "fired timer is no longer pending")
}

func TestTimerStop(t *testing.T) {
	mock := clock.NewMock()
	r := newReactor(t, reactor.WithClock(mock))
	tm := r.NewTimer()

	fired := make(chan struct{}, 1)
	tm.Reset(50*time.Millisecond, func() { fired <- struct{}{} })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	mock.Add(time.Second)
	assert.Never(t, func() bool { return len(fired) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestTimerResetReplacesPendingArm(t *testing.T) {
	mock := clock.NewMock()
	r := newReactor(t, reactor.WithClock(mock))
	tm := r.NewTimer()

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	tm.Reset(50*time.Millisecond, func() { first <- struct{}{} })
	tm.Reset(100*time.Millisecond, func() { second <- struct{}{} })

	mock.Add(60 * time.Millisecond)
	mock.Add(40 * time.Millisecond)
	receive(t, second)
	assert.Empty(t, first)
}

func TestOpenSocketFamilies(t *testing.T) {
	r := newReactor(t)

	s4, err := r.OpenSocket(api.FamilyIPv4)
	require.NoError(t, err)
	assert.Greater(t, int(s4.Fd()), 0)
	require.NoError(t, s4.Close())

	_, err = r.OpenSocket(api.FamilyUnspec)
	assert.Error(t, err)
}

func TestSocketReadiness(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	r := newReactor(t)
	cancel, errc := run(t, r)

	s, err := r.OpenSocket(api.FamilyIPv4)
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	err = unix.Connect(int(s.Fd()), &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}})
	require.True(t, err == nil || errors.Is(err, unix.EINPROGRESS), "connect: %v", err)

	ready := make(chan api.EventMask, 1)
	require.NoError(t, s.Watch(api.EventWrite, func(events api.EventMask) {
		select {
		case ready <- events:
		default:
		}
	}))
	events := receive(t, ready)
	assert.NotZero(t, events&api.EventWrite)

	require.NoError(t, s.Unwatch(api.EventWrite))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), api.ErrClosed)
	assert.ErrorIs(t, s.Watch(api.EventRead, func(api.EventMask) {}), api.ErrClosed)

	cancel()
	assert.NoError(t, receive(t, errc))
}

func TestCloseStopsRun(t *testing.T) {
	r := newReactor(t)
	_, errc := run(t, r)

	require.NoError(t, r.Close())
	// Close may win before Run takes the loop.
	if err := receive(t, errc); err != nil {
		assert.ErrorIs(t, err, api.ErrClosed)
	}

	assert.ErrorIs(t, r.Run(context.Background()), api.ErrClosed)
	_, err := r.OpenSocket(api.FamilyIPv4)
	assert.ErrorIs(t, err, api.ErrClosed)
	assert.NotPanics(t, func() { r.Post(func() {}) })
	assert.NoError(t, r.Close())
}
