//go:build linux
// +build linux

package facade_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-transfer/adapters"
	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/facade"
	"github.com/momentics/hioload-transfer/fake"
	"github.com/momentics/hioload-transfer/transfer"
)

const waitFor = 2 * time.Second

func newManager(t *testing.T) (*facade.Manager, *fake.Engine) {
	t.Helper()
	engine := fake.NewEngine()
	cfg := facade.DefaultConfig()
	cfg.NumWorkers = 2
	cfg.PollTimeout = 10 * time.Millisecond
	cfg.Logger = zaptest.NewLogger(t)
	cfg.Registerer = prometheus.NewRegistry()
	m, err := facade.New(engine, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Close() })
	return m, engine
}

func newHandle(t *testing.T, engine *fake.Engine) (*transfer.Handle, *fake.Transfer) {
	t.Helper()
	h, err := transfer.New(engine)
	require.NoError(t, err)
	ts := engine.Transfers()
	return h, ts[len(ts)-1]
}

func TestManagerExecute(t *testing.T) {
	m, engine := newManager(t)
	raw := engine.Multis()[0]
	h, ft := newHandle(t, engine)

	done := make(chan error, 1)
	tok := m.Execute(h, func(err error) { done <- err })
	assert.False(t, tok.IsZero())
	require.Eventually(t, func() bool { return raw.Has(ft) }, waitFor, time.Millisecond)

	raw.Complete(ft, api.ResultOK)
	raw.ArmTimer(0)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("completion not delivered")
	}
	assert.False(t, raw.Has(ft))

	state := m.DumpState()
	require.Contains(t, state, "adapter")
	stats := state["adapter"].(adapters.Stats)
	assert.EqualValues(t, 1, stats.Completed)
	assert.Contains(t, state, "executor")
	assert.Contains(t, state, "runtime.cpus")
}

func TestCallWait(t *testing.T) {
	m, engine := newManager(t)
	raw := engine.Multis()[0]
	h, ft := newHandle(t, engine)

	c := m.Do(h)
	assert.NoError(t, c.Err())
	require.Eventually(t, func() bool { return raw.Has(ft) }, waitFor, time.Millisecond)
	raw.Complete(ft, api.ResultRecvError)
	raw.ArmTimer(0)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := c.Wait(ctx)
	var terr *api.TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, api.TransferRecv, terr.Kind)
	assert.Equal(t, err, c.Err())
}

func TestCallCancel(t *testing.T) {
	m, engine := newManager(t)
	raw := engine.Multis()[0]
	h, ft := newHandle(t, engine)

	c := m.Do(h)
	require.Eventually(t, func() bool { return raw.Has(ft) }, waitFor, time.Millisecond)
	require.NoError(t, c.Cancel())

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("cancel not applied")
	}
	assert.ErrorIs(t, c.Err(), context.Canceled)
	assert.False(t, raw.Has(ft))
}

func TestSocketReadinessDrivesAction(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	m, engine := newManager(t)
	raw := engine.Multis()[0]
	h, ft := newHandle(t, engine)

	fd := api.SocketBad
	connectErr := make(chan error, 1)
	raw.OnAction = func(em *fake.Multi, afd api.SocketID, events api.EventMask) {
		switch {
		case afd == api.SocketTimeout && fd == api.SocketBad:
			fd = ft.OpenSocket(api.PurposeIPConnection, api.FamilyIPv4)
			err := unix.Connect(int(fd), &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}})
			if errors.Is(err, unix.EINPROGRESS) {
				err = nil
			}
			connectErr <- err
			em.Poll(ft, fd, api.PollOut)
		case afd == fd && events&api.EventWrite != 0:
			em.Poll(ft, fd, api.PollRemove)
			em.Complete(ft, api.ResultOK)
		}
	}

	c := m.Do(h)
	require.Eventually(t, func() bool { return raw.Has(ft) }, waitFor, time.Millisecond)
	raw.ArmTimer(0)
	select {
	case err := <-connectErr:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("socket not opened")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, c.Wait(ctx))

	var write []fake.Action
	for _, a := range raw.Actions() {
		if a.Fd != api.SocketTimeout {
			write = append(write, a)
		}
	}
	require.NotEmpty(t, write)
	assert.NotZero(t, write[0].Events&api.EventWrite)
	assert.False(t, raw.Has(ft))
	assert.EqualValues(t, 1, m.Adapter().Stats().OpenSockets)
}

func TestManagerShutdown(t *testing.T) {
	m, engine := newManager(t)
	raw := engine.Multis()[0]
	h, ft := newHandle(t, engine)

	called := make(chan struct{}, 1)
	m.Execute(h, func(error) { called <- struct{}{} })
	require.Eventually(t, func() bool { return raw.Has(ft) }, waitFor, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.True(t, raw.CleanedUp())
	assert.Nil(t, raw.Object(api.MOptTimerFunction))
	assert.Empty(t, called)
	assert.True(t, m.Adapter().Stats().Closed)

	require.NoError(t, m.Shutdown(ctx))
	assert.ErrorIs(t, m.Start(), api.ErrClosed)
}

func TestManagerWithInjectedReactor(t *testing.T) {
	engine := fake.NewEngine()
	r := fake.NewReactor()
	cfg := facade.DefaultConfig()
	cfg.Reactor = r
	m, err := facade.New(engine, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Start())

	raw := engine.Multis()[0]
	h, ft := newHandle(t, engine)
	var got []error
	m.Execute(h, func(err error) { got = append(got, err) })
	r.RunPending()
	raw.Complete(ft, api.ResultOK)
	raw.ArmTimer(0)
	r.RunPending()

	require.Len(t, got, 1)
	assert.NoError(t, got[0])
	assert.NotContains(t, m.DumpState(), "executor")

	m.Adapter().Close()
	r.RunPending()
	assert.True(t, raw.CleanedUp())
}

func TestNewFailsWithoutMultiplexer(t *testing.T) {
	engine := fake.NewEngine()
	engine.FailNewMulti = true
	_, err := facade.New(engine, nil)
	assert.ErrorIs(t, err, api.ErrAllocationFailure)
}
