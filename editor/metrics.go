package editor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ggolani/streamline/metric"
)

// editorMetrics holds Prometheus metrics for manager operations.
type editorMetrics struct {
	operations        *prometheus.CounterVec   // By operation and status (success/partial/failure)
	operationDuration *prometheus.HistogramVec // By operation
	batchFailures     *prometheus.CounterVec   // By operation and step
	validationRejects prometheus.Counter

	core *metric.Metrics
}

// newEditorMetrics creates and registers editor metrics with the provided registry.
func newEditorMetrics(registry *metric.MetricsRegistry) (*editorMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &editorMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamline",
			Subsystem: "editor",
			Name:      "operations_total",
			Help:      "Total number of editor operations",
		}, []string{"operation", "status"}),

		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamline",
			Subsystem: "editor",
			Name:      "operation_duration_seconds",
			Help:      "Editor operation duration in seconds, remote round trips included",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),

		batchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamline",
			Subsystem: "editor",
			Name:      "batch_failures_total",
			Help:      "Failed requests within editor batches",
		}, []string{"operation", "step"}),

		validationRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamline",
			Subsystem: "editor",
			Name:      "edge_rejections_total",
			Help:      "Edges refused by the edge validator",
		}),

		core: registry.CoreMetrics(),
	}

	if err := registry.RegisterCounterVec("editor", "operations", m.operations); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("editor", "operation_duration", m.operationDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("editor", "batch_failures", m.batchFailures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("editor", "edge_rejections", m.validationRejects); err != nil {
		return nil, err
	}

	return m, nil
}

// recordOperation records a single-request operation.
func (m *editorMetrics) recordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "failure"
	}

	m.operations.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// recordBatch records a fan-out operation and its failed steps.
func (m *editorMetrics) recordBatch(operation string, res BatchResult, duration time.Duration) {
	if m == nil {
		return
	}

	failed := res.Failed()
	status := "success"
	switch {
	case len(failed) == 0:
	case len(failed) == res.Len():
		status = "failure"
	default:
		status = "partial"
	}

	m.operations.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	for _, o := range failed {
		m.batchFailures.WithLabelValues(operation, string(o.Step)).Inc()
	}
}

func (m *editorMetrics) recordRejection() {
	if m == nil {
		return
	}
	m.validationRejects.Inc()
}

func (m *editorMetrics) recordNotification(level Level) {
	if m == nil {
		return
	}
	m.core.RecordNotification(string(level))
}

func (m *editorMetrics) recordRefresh(nodes, edges int) {
	if m == nil {
		return
	}
	m.core.RecordRefresh()
	m.core.RecordGraphSize(nodes, edges)
}
