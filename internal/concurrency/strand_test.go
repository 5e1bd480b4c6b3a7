package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsSubmittedTasks(t *testing.T) {
	e := NewExecutor(4)
	var wg sync.WaitGroup
	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, e.Submit(func() {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	e.Close()
	assert.Equal(t, int64(100), ran.Load())
	assert.Equal(t, int64(100), e.Stats()["completed_tasks"])
	assert.ErrorIs(t, e.Submit(func() {}), ErrExecutorClosed)
}

func TestExecutorCloseDrainsBacklog(t *testing.T) {
	e := NewExecutor(1)
	var ran atomic.Int64
	block := make(chan struct{})
	require.NoError(t, e.Submit(func() { <-block }))
	for i := 0; i < 10; i++ {
		require.NoError(t, e.Submit(func() { ran.Add(1) }))
	}
	close(block)
	e.Close()
	assert.Equal(t, int64(10), ran.Load())
}

func TestStrandSerializesInOrder(t *testing.T) {
	e := NewExecutor(8)
	defer e.Close()
	s := NewStrand(e)

	const n = 500
	var (
		active  atomic.Int32
		overlap atomic.Bool
		mu      sync.Mutex
		order   []int
		wg      sync.WaitGroup
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		s.Post(func() {
			defer wg.Done()
			if active.Add(1) != 1 {
				overlap.Store(true)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			active.Add(-1)
		})
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestStrandPostFromTaskRunsLater(t *testing.T) {
	e := NewExecutor(2)
	defer e.Close()
	s := NewStrand(e)

	var seq []string
	done := make(chan struct{})
	s.Post(func() {
		s.Post(func() {
			seq = append(seq, "inner")
			close(done)
		})
		seq = append(seq, "outer")
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("strand task did not run")
	}
	assert.Equal(t, []string{"outer", "inner"}, seq)
}

func TestStrandDropsBacklogWhenExecutorClosed(t *testing.T) {
	e := NewExecutor(1)
	e.Close()
	s := NewStrand(e)
	s.Post(func() { t.Error("task ran on closed executor") })
	assert.Zero(t, s.Pending())
}
