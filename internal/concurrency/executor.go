// File: internal/concurrency/executor.go
// Package concurrency implements the worker executor and serialized strands
// the reactor runs callbacks on.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks to a fixed set of worker goroutines from one
// unbounded FIFO backlog, so Submit never blocks, even when called from a
// worker.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// TaskFunc is a unit of work to execute.
type TaskFunc func()

// Executor manages a pool of worker goroutines.
type Executor struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog *queue.Queue // of TaskFunc
	closed  bool
	wg      sync.WaitGroup

	numWorkers int

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
}

// NewExecutor creates a new Executor with the given number of workers.
// If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(numWorkers int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		backlog:    queue.New(),
		numWorkers: numWorkers,
	}
	e.cond = sync.NewCond(&e.mu)
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.worker()
	}
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if executor is closed.
func (e *Executor) Submit(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.backlog.Add(TaskFunc(task))
	e.totalTasks.Add(1)
	e.cond.Signal()
	return nil
}

// NumWorkers returns the number of workers.
func (e *Executor) NumWorkers() int {
	return e.numWorkers
}

// Close stops accepting tasks, lets workers finish the backlog and waits for
// them to exit. Close must not be called from a task.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	total := e.totalTasks.Load()
	completed := e.completedTasks.Load()
	return map[string]int64{
		"total_tasks":     total,
		"completed_tasks": completed,
		"pending_tasks":   total - completed,
		"num_workers":     int64(e.numWorkers),
	}
}

func (e *Executor) next() (TaskFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.backlog.Length() == 0 {
		if e.closed {
			return nil, false
		}
		e.cond.Wait()
	}
	return e.backlog.Remove().(TaskFunc), true
}

// worker runs tasks until the executor is closed and drained. Task panics are
// not recovered: they indicate broken invariants and terminate the process.
func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		task, ok := e.next()
		if !ok {
			return
		}
		task()
		e.completedTasks.Add(1)
	}
}
