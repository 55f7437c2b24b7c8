// Package metrics wires a small set of Prometheus collectors into the
// System Monitor (L6) and Message Router (L4). This is a local, in-process
// metrics registry with no exporter attached by default — distinct from
// the out-of-scope HTTP dashboard uploader, which ships traces to an
// external visualization service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set groups the collectors a single participant registers. Callers wire
// it to their own prometheus.Registerer (or leave it unregistered, in
// which case the collectors are still safe to call — they simply aren't
// scraped).
type Set struct {
	Registry *prometheus.Registry

	ParticipantState   *prometheus.GaugeVec
	RouterMessagesSent *prometheus.CounterVec
	RouterMessagesRecv *prometheus.CounterVec
	BarrierNow         prometheus.Gauge
	ConnectedPeers     prometheus.Gauge
}

// New builds a Set with a private prometheus.Registry, registering every
// collector so duplicate-registration panics surface immediately rather
// than on first observation.
func New(participantName string) *Set {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"participant": participantName}

	s := &Set{
		Registry: reg,
		ParticipantState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "silkit",
			Name:        "participant_state",
			Help:        "1 for the aggregate system state this participant's monitor currently reports, 0 otherwise.",
			ConstLabels: constLabels,
		}, []string{"state"}),
		RouterMessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "silkit",
			Name:        "router_messages_sent_total",
			Help:        "Messages handed to the transport for a given message type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		RouterMessagesRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "silkit",
			Name:        "router_messages_received_total",
			Help:        "Messages dispatched to local subscribers for a given message type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		BarrierNow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "silkit",
			Name:        "barrier_now_nanoseconds",
			Help:        "Current virtual time, in nanoseconds, as advanced by the time-sync barrier.",
			ConstLabels: constLabels,
		}),
		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "silkit",
			Name:        "connected_peers",
			Help:        "Number of peers with a live connection.",
			ConstLabels: constLabels,
		}),
	}

	reg.MustRegister(s.ParticipantState, s.RouterMessagesSent, s.RouterMessagesRecv, s.BarrierNow, s.ConnectedPeers)
	return s
}
