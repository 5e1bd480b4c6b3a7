// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics of the transfer adapter, exported as Prometheus collectors.
// A nil *Metrics is valid and records nothing.

package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "hioload"
	subsystem = "transfer"
)

// Metrics holds the adapter's collectors.
type Metrics struct {
	Submitted     prometheus.Counter
	Completed     *prometheus.CounterVec
	Cancelled     prometheus.Counter
	SocketActions prometheus.Counter
	OpenSockets   prometheus.Gauge
	Pending       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "submitted_total",
			Help: "Transfers registered with the multiplexer.",
		}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "completed_total",
			Help: "Transfers reported finished by the engine, by result.",
		}, []string{"result"}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cancelled_total",
			Help: "Transfers removed before completion.",
		}),
		SocketActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "socket_actions_total",
			Help: "Engine progress calls.",
		}),
		OpenSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "open_sockets",
			Help: "Reactor sockets currently owned for the engine.",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "pending_transfers",
			Help: "Transfers registered and not yet completed or cancelled.",
		}),
	}
	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Submitted, m.Completed, m.Cancelled, m.SocketActions, m.OpenSockets, m.Pending}
}

// TransferSubmitted records a registration.
func (m *Metrics) TransferSubmitted() {
	if m == nil {
		return
	}
	m.Submitted.Inc()
	m.Pending.Inc()
}

// TransferCompleted records a completion with its result label.
func (m *Metrics) TransferCompleted(result string) {
	if m == nil {
		return
	}
	m.Completed.WithLabelValues(result).Inc()
	m.Pending.Dec()
}

// TransfersCancelled records n cancellations.
func (m *Metrics) TransfersCancelled(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Cancelled.Add(float64(n))
	m.Pending.Sub(float64(n))
}

// SocketAction records an engine progress call.
func (m *Metrics) SocketAction() {
	if m == nil {
		return
	}
	m.SocketActions.Inc()
}

// SocketOpened records a socket handed to the engine.
func (m *Metrics) SocketOpened() {
	if m == nil {
		return
	}
	m.OpenSockets.Inc()
}

// SocketClosed records a socket released by the engine.
func (m *Metrics) SocketClosed() {
	if m == nil {
		return
	}
	m.OpenSockets.Dec()
}
