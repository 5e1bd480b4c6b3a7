// File: internal/concurrency/strand.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"

	"github.com/eapache/queue"
)

// strandBatch bounds how many tasks one executor turn runs before the strand
// yields the worker to other work.
const strandBatch = 64

// Submitter is the subset of Executor a Strand needs.
type Submitter interface {
	Submit(task func()) error
}

// Strand serializes tasks on top of an executor: at most one of its tasks
// runs at any time, in posting order, whichever worker picks it up.
type Strand struct {
	exec Submitter

	mu      sync.Mutex
	backlog *queue.Queue // of TaskFunc
	running bool
}

// NewStrand returns a strand running on exec.
func NewStrand(exec Submitter) *Strand {
	return &Strand{exec: exec, backlog: queue.New()}
}

// Post queues task. If the executor no longer accepts work the backlog is
// dropped.
func (s *Strand) Post(task func()) {
	s.mu.Lock()
	s.backlog.Add(TaskFunc(task))
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()
	s.schedule()
}

// Pending returns the number of queued tasks.
func (s *Strand) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog.Length()
}

func (s *Strand) schedule() {
	if err := s.exec.Submit(s.drain); err != nil {
		s.mu.Lock()
		for s.backlog.Length() > 0 {
			s.backlog.Remove()
		}
		s.running = false
		s.mu.Unlock()
	}
}

func (s *Strand) drain() {
	for i := 0; i < strandBatch; i++ {
		s.mu.Lock()
		if s.backlog.Length() == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.backlog.Remove().(TaskFunc)
		s.mu.Unlock()
		task()
	}
	s.schedule()
}
