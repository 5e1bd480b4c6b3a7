package adapters_test

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-transfer/adapters"
	"github.com/momentics/hioload-transfer/fake"
)

func TestControlAdapterWatchesAdapter(t *testing.T) {
	ctrl, err := adapters.NewControlAdapter(prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, ctrl.Metrics())

	r := fake.NewReactor()
	a, err := adapters.NewMultiAdapter(r, fake.NewEngine(), adapters.WithMetrics(ctrl.Metrics()))
	require.NoError(t, err)
	ctrl.Watch(a)
	ctrl.RegisterDebugProbe("custom", func() any { return "v" })

	stats := ctrl.Stats()
	assert.Equal(t, adapters.Stats{}, stats["adapter"])
	assert.Equal(t, "v", stats["custom"])
	assert.Contains(t, stats, "runtime.cpus")

	ctrl.UnregisterDebugProbe("custom")
	assert.NotContains(t, ctrl.Stats(), "custom")
}

func TestExecutorAdapter(t *testing.T) {
	ea := adapters.NewExecutorAdapter(2)
	assert.Equal(t, 2, ea.NumWorkers())

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		require.NoError(t, ea.Submit(wg.Done))
	}
	wg.Wait()
	ea.Close()

	assert.EqualValues(t, 10, ea.Stats()["completed_tasks"])
	assert.Error(t, ea.Submit(func() {}))
}
