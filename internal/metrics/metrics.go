package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Rolls             *prometheus.CounterVec
	Reveals           *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
	FeedEntries       *prometheus.CounterVec
	InboundMessages   *prometheus.CounterVec
	DroppedClients    prometheus.Counter
	RateLimited       prometheus.Counter
	ActiveConnections prometheus.Gauge
	Rooms             prometheus.Gauge
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Rolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darkmoon",
			Name:      "rolls_total",
			Help:      "Rolls created, by section.",
		}, []string{"section"}),
		Reveals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darkmoon",
			Name:      "reveals_total",
			Help:      "Rolls completed by a reveal, by section.",
		}, []string{"section"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darkmoon",
			Name:      "rejected_requests_total",
			Help:      "Requests rejected with a precondition or validation error.",
		}, []string{"command", "kind"}),
		FeedEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darkmoon",
			Name:      "feed_entries_total",
			Help:      "Feed entries appended, by entry type.",
		}, []string{"type"}),
		InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "darkmoon",
			Name:      "ws_inbound_messages_total",
			Help:      "Websocket frames received, by message type.",
		}, []string{"type"}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darkmoon",
			Name:      "dropped_clients_total",
			Help:      "Clients dropped because their outbox was full.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "darkmoon",
			Name:      "ws_rate_limited_total",
			Help:      "Inbound frames refused by the per-connection rate limit.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "darkmoon",
			Name:      "ws_active_connections",
			Help:      "Open websocket connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "darkmoon",
			Name:      "rooms",
			Help:      "Rooms created since start.",
		}),
	}

	reg.MustRegister(
		m.Rolls, m.Reveals, m.Rejected, m.FeedEntries, m.InboundMessages,
		m.DroppedClients, m.RateLimited, m.ActiveConnections, m.Rooms,
	)
	return m
}

// NewUnregistered is for tests and tools that never expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
