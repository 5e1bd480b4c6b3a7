package multi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/fake"
	"github.com/momentics/hioload-transfer/multi"
	"github.com/momentics/hioload-transfer/transfer"
)

func setup(t *testing.T) (*multi.Multi, *fake.Multi, *fake.Engine) {
	t.Helper()
	engine := fake.NewEngine()
	m, err := multi.New(engine)
	require.NoError(t, err)
	return m, engine.Multis()[0], engine
}

func newHandle(t *testing.T, engine api.Engine) *transfer.Handle {
	t.Helper()
	h, err := transfer.New(engine)
	require.NoError(t, err)
	return h
}

func TestNewAllocationFailure(t *testing.T) {
	engine := fake.NewEngine()
	engine.FailNewMulti = true
	_, err := multi.New(engine)
	assert.ErrorIs(t, err, api.ErrAllocationFailure)
}

func TestAddRemove(t *testing.T) {
	m, raw, engine := setup(t)
	h := newHandle(t, engine)

	require.NoError(t, m.Add(h))
	assert.True(t, raw.Has(h.Raw()))
	assert.Same(t, h, m.Lookup(h.Raw()))
	assert.Equal(t, 1, m.Len())

	got, err := m.Remove(h.Raw())
	require.NoError(t, err)
	assert.Same(t, h, got)
	assert.False(t, raw.Has(h.Raw()))
	assert.Zero(t, m.Len())
}

func TestAddTwiceIsEngineError(t *testing.T) {
	m, _, engine := setup(t)
	h := newHandle(t, engine)
	require.NoError(t, m.Add(h))

	err := m.Add(h)
	var engErr *api.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, api.MultiAddedAlready, engErr.Code)
	assert.Equal(t, 1, m.Len())
}

func TestAddFailureLeavesNoAssociation(t *testing.T) {
	m, raw, engine := setup(t)
	raw.FailAdd = api.MultiOutOfMemory

	err := m.Add(newHandle(t, engine))
	assert.ErrorIs(t, err, api.ErrAllocationFailure)
	assert.Zero(t, m.Len())
}

func TestRemoveUnknownIsTolerated(t *testing.T) {
	m, _, engine := setup(t)
	h := newHandle(t, engine)

	got, err := m.Remove(h.Raw())
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestClear(t *testing.T) {
	m, raw, engine := setup(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Add(newHandle(t, engine)))
	}
	require.NoError(t, m.Clear())
	assert.Zero(t, m.Len())
	assert.Zero(t, raw.Running())
}

func TestClearAggregatesFailures(t *testing.T) {
	m, raw, engine := setup(t)
	require.NoError(t, m.Add(newHandle(t, engine)))
	require.NoError(t, m.Add(newHandle(t, engine)))
	raw.FailRemove = api.MultiInternalError

	err := m.Clear()
	assert.Len(t, multierr.Errors(err), 2)
	assert.Zero(t, m.Len())
}

func TestSocketActionFailure(t *testing.T) {
	m, raw, _ := setup(t)
	raw.FailAction = api.MultiBadSocket

	_, err := m.SocketAction(7, api.EventRead)
	var engErr *api.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, api.MultiBadSocket, engErr.Code)
	assert.Equal(t, []fake.Action{{Fd: 7, Events: api.EventRead}}, raw.Actions())
}

func TestPollCompletionMessagesDrainsToExhaustion(t *testing.T) {
	m, raw, engine := setup(t)
	h1 := newHandle(t, engine)
	h2 := newHandle(t, engine)
	require.NoError(t, m.Add(h1))
	require.NoError(t, m.Add(h2))

	raw.OnAction = func(fm *fake.Multi, fd api.SocketID, events api.EventMask) {
		fm.Complete(h1.Raw(), api.ResultOK)
		fm.Complete(h2.Raw(), api.ResultRecvError)
	}
	running, err := m.SocketAction(api.SocketTimeout, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, running)

	msgs := m.PollCompletionMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, h1.Raw(), msgs[0].Transfer)
	assert.Equal(t, api.ResultRecvError, msgs[1].Result)

	assert.Empty(t, m.PollCompletionMessages())
}

func TestCloseCleansUpEngine(t *testing.T) {
	m, raw, engine := setup(t)
	require.NoError(t, m.Add(newHandle(t, engine)))
	require.NoError(t, m.Close())
	assert.True(t, raw.CleanedUp())
	assert.Zero(t, m.Len())
	require.NoError(t, m.Close())
}

func TestSetOption(t *testing.T) {
	m, raw, _ := setup(t)
	require.NoError(t, m.SetOption(api.MOptTimerData, "ctx"))
	assert.Equal(t, "ctx", raw.Object(api.MOptTimerData))
	require.NoError(t, m.SetOption(api.MOptTimerData, nil))
	assert.Nil(t, raw.Object(api.MOptTimerData))
}
