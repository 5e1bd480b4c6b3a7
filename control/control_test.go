package control_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-transfer/control"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *control.Metrics
	assert.NotPanics(t, func() {
		m.TransferSubmitted()
		m.TransferCompleted("ok")
		m.TransfersCancelled(3)
		m.SocketAction()
		m.SocketOpened()
		m.SocketClosed()
	})
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := control.NewMetrics(reg)
	require.NoError(t, err)

	m.TransferSubmitted()
	m.TransferSubmitted()
	m.TransferCompleted("ok")
	m.TransfersCancelled(1)
	m.SocketOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Completed.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpenSockets))
	assert.Zero(t, testutil.ToFloat64(m.Pending))

	n, err := testutil.GatherAndCount(reg, "hioload_transfer_submitted_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = control.NewMetrics(reg)
	assert.Error(t, err, "collectors are already registered")
}

func TestMetricsWithoutRegistry(t *testing.T) {
	m, err := control.NewMetrics(nil)
	require.NoError(t, err)
	m.SocketAction()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SocketActions))
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("b", func() any { return 2 })
	dp.RegisterProbe("a", func() any { return 1 })
	assert.Equal(t, []string{"a", "b"}, dp.Names())
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, dp.DumpState())

	dp.Unregister("a")
	dp.Unregister("missing")
	assert.Equal(t, map[string]any{"b": 2}, dp.DumpState())
}

func TestProbeMayRegisterDuringDump(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("self", func() any {
		dp.RegisterProbe("late", func() any { return true })
		return "ok"
	})
	assert.NotPanics(t, func() { dp.DumpState() })
	assert.Contains(t, dp.Names(), "late")
}

func TestRuntimeProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterRuntimeProbes(dp)
	state := dp.DumpState()
	assert.Contains(t, state, "runtime.cpus")
	assert.Contains(t, state, "runtime.goroutines")
	assert.Contains(t, state, "runtime.os")
}
