package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	OrderTransitions     *prometheus.CounterVec
	Notifications        *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	WebsocketConnections prometheus.Gauge
	ExpiredPaymentsSwept prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repairshop",
			Name:      "order_transitions_total",
			Help:      "Order lifecycle operations by operation and result kind.",
		}, []string{"op", "result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repairshop",
			Name:      "notifications_total",
			Help:      "Notifications published by type.",
		}, []string{"type"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repairshop",
			Name:      "notifications_dropped_total",
			Help:      "Notification deliveries dropped because a queue was full.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repairshop",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "repairshop",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		WebsocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "repairshop",
			Name:      "websocket_connections",
			Help:      "Live websocket subscribers.",
		}),
		ExpiredPaymentsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repairshop",
			Name:      "expired_payments_total",
			Help:      "Pending payments failed by the expiry job.",
		}),
	}
	reg.MustRegister(
		m.OrderTransitions, m.Notifications, m.NotificationsDropped,
		m.HTTPRequests, m.HTTPDuration, m.WebsocketConnections, m.ExpiredPaymentsSwept,
	)
	return m
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
