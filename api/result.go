// Package api
// Author: momentics@gmail.com
//
// Cancellation contract for asynchronous operations.

package api

// Cancelable is any operation that may be canceled.
type Cancelable interface {
	// Cancel attempts to abort the operation.
	Cancel() error
	// Done is closed once the operation completed or was cancelled.
	Done() <-chan struct{}
	// Err returns the outcome, valid after Done is closed.
	Err() error
}
