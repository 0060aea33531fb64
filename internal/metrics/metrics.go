package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cursor_relay"

// Drop reasons for frames that are read but not routed.
const (
	ReasonMalformed   = "malformed"
	ReasonMismatch    = "identity_mismatch"
	ReasonUnknownKind = "unknown_kind"
	ReasonRateLimited = "rate_limited"
)

// Handshake rejection reasons.
const (
	RejectMissingIdentity = "missing_identity"
	RejectBoardFull       = "board_full"
	RejectShuttingDown    = "shutting_down"
)

// Relay holds the relay's collectors. A nil *Relay is valid and records nothing.
type Relay struct {
	activeConnections prometheus.Gauge
	activeBoards      prometheus.Gauge
	connectionsTotal  prometheus.Counter
	handshakeRejected *prometheus.CounterVec
	framesReceived    prometheus.Counter
	framesRouted      *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	deliveries        prometheus.Counter
	deliveryFailures  prometheus.Counter
	slowConsumers     prometheus.Counter
	auditWritten      prometheus.Counter
	auditDropped      prometheus.Counter
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewRelay creates the relay collectors and registers them with reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Registered WebSocket connections.",
		}),
		activeBoards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_boards",
			Help:      "Boards with at least one registered participant.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted WebSocket connections.",
		}),
		handshakeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_rejected_total",
			Help:      "Connections closed during handshake, by reason.",
		}, []string{"reason"}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames read from participants.",
		}),
		framesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_routed_total",
			Help:      "Envelopes fanned out, by kind.",
		}, []string{"kind"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames not routed, by reason.",
		}, []string{"reason"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-recipient envelope deliveries queued.",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-recipient deliveries that failed.",
		}),
		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumers_total",
			Help:      "Peers disconnected because their send queue was full.",
		}),
		auditWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_written_total",
			Help:      "Session records persisted.",
		}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Session records discarded after a failed flush or a full queue.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.activeConnections,
			m.activeBoards,
			m.connectionsTotal,
			m.handshakeRejected,
			m.framesReceived,
			m.framesRouted,
			m.framesDropped,
			m.deliveries,
			m.deliveryFailures,
			m.slowConsumers,
			m.auditWritten,
			m.auditDropped,
		)
	}

	return m
}

// Handler serves the exposition format for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Relay) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

func (m *Relay) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Relay) SetBoards(n int) {
	if m == nil {
		return
	}
	m.activeBoards.Set(float64(n))
}

func (m *Relay) HandshakeRejected(reason string) {
	if m == nil {
		return
	}
	m.handshakeRejected.WithLabelValues(reason).Inc()
}

func (m *Relay) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

func (m *Relay) FrameRouted(kind string, recipients, failed int) {
	if m == nil {
		return
	}
	m.framesRouted.WithLabelValues(kind).Inc()
	m.deliveries.Add(float64(recipients - failed))
	m.deliveryFailures.Add(float64(failed))
}

func (m *Relay) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Relay) SlowConsumer() {
	if m == nil {
		return
	}
	m.slowConsumers.Inc()
}

func (m *Relay) AuditWritten(n int) {
	if m == nil {
		return
	}
	m.auditWritten.Add(float64(n))
}

func (m *Relay) AuditDropped(n int) {
	if m == nil {
		return
	}
	m.auditDropped.Add(float64(n))
}
