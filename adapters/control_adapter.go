// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control over the control package: adapter
// metrics and named debug probes.

package adapters

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-transfer/api"
	"github.com/momentics/hioload-transfer/control"
)

// ControlAdapter implements api.Control for the transfer stack.
type ControlAdapter struct {
	metrics *control.Metrics
	debug   *control.DebugProbes
}

var _ api.Control = (*ControlAdapter)(nil)

// NewControlAdapter registers the transfer metrics with reg (nil skips
// registration) and the runtime probes.
func NewControlAdapter(reg prometheus.Registerer) (*ControlAdapter, error) {
	m, err := control.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	c := &ControlAdapter{metrics: m, debug: control.NewDebugProbes()}
	control.RegisterRuntimeProbes(c.debug)
	return c, nil
}

// Metrics returns the collectors handed to multi adapters.
func (c *ControlAdapter) Metrics() *control.Metrics { return c.metrics }

// Watch exposes a multi adapter's counters under the "adapter" probe.
func (c *ControlAdapter) Watch(a *MultiAdapter) {
	c.debug.RegisterProbe("adapter", func() any { return a.Stats() })
}

// Stats returns a snapshot of every registered probe.
func (c *ControlAdapter) Stats() map[string]any {
	return c.debug.DumpState()
}

// RegisterDebugProbe adds or replaces the probe called name.
func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

// UnregisterDebugProbe removes the probe called name.
func (c *ControlAdapter) UnregisterDebugProbe(name string) {
	c.debug.Unregister(name)
}
