// File: api/control.go
// Package api defines Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control exposes runtime state for diagnostics.
type Control interface {
	// Stats returns the output of every registered probe.
	Stats() map[string]any
	RegisterDebugProbe(name string, fn func() any)
}
