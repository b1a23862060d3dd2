// Package metric provides the Prometheus registry shared by the editor
// components and an HTTP server exposing it.
//
// NewMetricsRegistry registers the core editor metrics (entity store
// traffic, graph size, notifications, websocket clients) and the Go runtime
// collectors. Components register their own metrics through the
// MetricsRegistrar methods, keyed by component and metric name:
//
//	registry := metric.NewMetricsRegistry()
//	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Namespace: "streamline",
//	    Subsystem: "editor",
//	    Name:      "operations_total",
//	}, []string{"operation", "status"})
//	if err := registry.RegisterCounterVec("editor", "operations", ops); err != nil {
//	    return err
//	}
//
// Registering the same component/metric pair twice returns an Invalid
// error instead of panicking.
//
//	server := metric.NewServer(":9090", "/metrics", registry)
//	go server.Start()
//	defer server.Stop(ctx)
package metric
