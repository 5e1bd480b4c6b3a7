// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the transfer adapter.
//
// Provides concurrent-safe primitives including:
//   - Prometheus collectors for submissions, completions and socket actions
//   - Named debug probes with state export
//   - Runtime probes describing the host process
package control
