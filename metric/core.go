package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the process-wide editor metrics
type Metrics struct {
	// Entity store traffic
	StoreRequests *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec

	// Graph state
	GraphNodes prometheus.Gauge
	GraphEdges prometheus.Gauge

	// Rendering layer
	Notifications    *prometheus.CounterVec
	Refreshes        prometheus.Counter
	WebsocketClients prometheus.Gauge
}

// NewMetrics creates the editor metrics
func NewMetrics() *Metrics {
	return &Metrics{
		StoreRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamline",
				Subsystem: "store",
				Name:      "requests_total",
				Help:      "Entity store requests by operation, category and outcome",
			},
			[]string{"op", "category", "status"},
		),

		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "streamline",
				Subsystem: "store",
				Name:      "request_duration_seconds",
				Help:      "Entity store request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"op"},
		),

		GraphNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamline",
				Subsystem: "graph",
				Name:      "nodes",
				Help:      "Nodes currently in graph state",
			},
		),

		GraphEdges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamline",
				Subsystem: "graph",
				Name:      "edges",
				Help:      "Edges currently in graph state",
			},
		),

		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "streamline",
				Subsystem: "editor",
				Name:      "notifications_total",
				Help:      "User notifications by level",
			},
			[]string{"level"},
		),

		Refreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "streamline",
				Subsystem: "editor",
				Name:      "refreshes_total",
				Help:      "Redraw requests sent to the rendering layer",
			},
		),

		WebsocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "streamline",
				Subsystem: "api",
				Name:      "websocket_clients",
				Help:      "Connected websocket clients",
			},
		),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.StoreRequests,
		m.StoreDuration,
		m.GraphNodes,
		m.GraphEdges,
		m.Notifications,
		m.Refreshes,
		m.WebsocketClients,
	}
}

// RecordStoreRequest records one entity store call
func (m *Metrics) RecordStoreRequest(op, category string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.StoreRequests.WithLabelValues(op, category, status).Inc()
	m.StoreDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordGraphSize records the size of graph state
func (m *Metrics) RecordGraphSize(nodes, edges int) {
	if m == nil {
		return
	}
	m.GraphNodes.Set(float64(nodes))
	m.GraphEdges.Set(float64(edges))
}

// RecordNotification counts a user notification
func (m *Metrics) RecordNotification(level string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(level).Inc()
}

// RecordRefresh counts a redraw request
func (m *Metrics) RecordRefresh() {
	if m == nil {
		return
	}
	m.Refreshes.Inc()
}

// RecordWebsocketClients sets the connected websocket client count
func (m *Metrics) RecordWebsocketClients(n int) {
	if m == nil {
		return
	}
	m.WebsocketClients.Set(float64(n))
}
