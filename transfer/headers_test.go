package transfer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/fake"
	"github.com/momentics/hioload-transfer/transfer"
)

func TestHeaderListAppendMovesHead(t *testing.T) {
	engine := fake.NewEngine()
	l := transfer.NewHeaderList(engine)
	assert.Nil(t, l.Raw())

	require.NoError(t, l.Append("Accept: */*"))
	first := l.Raw()
	require.NoError(t, l.Append("X-Trace: 1"))
	assert.NotSame(t, first, l.Raw())
	assert.Equal(t, []string{"Accept: */*", "X-Trace: 1"}, l.Lines())
	assert.Equal(t, 2, l.Len())
}

func TestHeaderListResetThenAppend(t *testing.T) {
	prefixes := [][]string{
		nil,
		{"A: 1"},
		{"A: 1", "B: 2", "C:"},
	}
	appended := []string{"X: 1", "Y: 2", "Z:"}

	for _, before := range prefixes {
		engine := fake.NewEngine()
		l := transfer.NewHeaderList(engine)
		for _, line := range before {
			require.NoError(t, l.Append(line))
		}
		l.Reset()
		assert.Zero(t, engine.LiveListNodes())
		for _, line := range appended {
			require.NoError(t, l.Append(line))
		}
		assert.Equal(t, appended, l.Lines())
	}
}

func TestHeaderListAppendOutOfMemory(t *testing.T) {
	engine := fake.NewEngine()
	l := transfer.NewHeaderList(engine)
	require.NoError(t, l.Append("A: 1"))

	engine.FailListAppend = true
	err := l.Append("B: 2")
	require.ErrorIs(t, err, api.ErrAllocationFailure)
	assert.Equal(t, []string{"A: 1"}, l.Lines())
}
