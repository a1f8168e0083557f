package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the chat collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesSent        prometheus.Counter
	RoomsCreated        prometheus.Counter
	RoomsResolved       *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	ActiveSubscriptions *prometheus.GaugeVec
	Connections         prometheus.Gauge
	RateLimited         *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages appended to a room",
		}),
		RoomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Rooms created by the resolver",
		}),
		RoomsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_rooms_resolved_total",
			Help: "Room resolutions by outcome",
		}, []string{"outcome"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_store_errors_total",
			Help: "Store failures surfaced to callers",
		}, []string{"operation"}),
		ActiveSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chat_active_subscriptions",
			Help: "Live store subscriptions held by sessions",
		}, []string{"feed"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_rate_limited_total",
			Help: "Actions rejected by the rate limiter",
		}, []string{"action"}),
	}
	reg.MustRegister(
		m.MessagesSent,
		m.RoomsCreated,
		m.RoomsResolved,
		m.StoreErrors,
		m.ActiveSubscriptions,
		m.Connections,
		m.RateLimited,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

// RoomResolved records outcome "existing", "legacy" or "created".
func (m *Metrics) RoomResolved(outcome string) {
	if m == nil {
		return
	}
	m.RoomsResolved.WithLabelValues(outcome).Inc()
	if outcome == "created" {
		m.RoomsCreated.Inc()
	}
}

func (m *Metrics) StoreError(operation string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) SubscriptionOpened(feed string) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.WithLabelValues(feed).Inc()
}

func (m *Metrics) SubscriptionClosed(feed string) {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.WithLabelValues(feed).Dec()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) Limited(action string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(action).Inc()
}
