// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for the reactor: a worker executor with an unbounded
// backlog and strands that serialize tasks on top of it. Code posted to one
// strand never runs concurrently with other code posted to the same strand,
// which is what lets the transfer adapter keep its state lock-free.
package concurrency
