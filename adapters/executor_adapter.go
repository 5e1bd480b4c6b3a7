// File: adapters/executor_adapter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ExecutorAdapter exposes the internal worker executor through api.Executor so
// that a reactor can share one worker pool with other components.

package adapters

import (
	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/internal/concurrency"
)

// ExecutorAdapter wraps an internal concurrency.Executor to satisfy the api.Executor contract.
type ExecutorAdapter struct {
	exec *concurrency.Executor
}

var _ api.Executor = (*ExecutorAdapter)(nil)

// NewExecutorAdapter starts an executor with the given number of workers.
// workers <= 0 selects runtime.NumCPU().
func NewExecutorAdapter(workers int) *ExecutorAdapter {
	return &ExecutorAdapter{exec: concurrency.NewExecutor(workers)}
}

// Submit dispatches a task function to be executed asynchronously.
// Returns an error if the executor has been closed.
func (ea *ExecutorAdapter) Submit(task func()) error {
	return ea.exec.Submit(task)
}

// NumWorkers returns the number of worker goroutines.
func (ea *ExecutorAdapter) NumWorkers() int {
	return ea.exec.NumWorkers()
}

// Stats returns the executor task counters.
func (ea *ExecutorAdapter) Stats() map[string]int64 {
	return ea.exec.Stats()
}

// Close runs the remaining backlog and stops the workers.
func (ea *ExecutorAdapter) Close() {
	ea.exec.Close()
}
