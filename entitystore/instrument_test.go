package entitystore

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggolani/streamline/metric"
	"github.com/ggolani/streamline/topology"
)

func TestInstrumented(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(Scope{TopologyID: 1})
	metrics := metric.NewMetrics()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	c := NewInstrumented(mem, metrics, logger)
	assert.Same(t, mem, c.Unwrap())

	created, err := c.CreateNode(ctx, topology.CategorySources, &Entity{Name: "Kafka"})
	require.NoError(t, err)
	_, err = c.GetNode(ctx, topology.CategorySources, created.ID)
	require.NoError(t, err)

	mem.Reject(OpDelete, topology.CategorySources, created.ID, "Source in use")
	_, err = c.DeleteNode(ctx, topology.CategorySources, created.ID)
	require.Error(t, err)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.StoreRequests.WithLabelValues("create", "sources", "success")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.StoreRequests.WithLabelValues("get", "sources", "success")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(metrics.StoreRequests.WithLabelValues("delete", "sources", "failure")))

	out := logs.String()
	assert.Contains(t, out, "store request failed")
	assert.Contains(t, out, "Source in use")
	assert.Contains(t, out, "component=entitystore")
	assert.Len(t, mem.Calls(), 3)
}

func TestInstrumented_NilMetrics(t *testing.T) {
	c := NewInstrumented(NewMemory(Scope{TopologyID: 1}), nil, nil)
	_, err := c.ListNodes(context.Background(), topology.CategoryEdges)
	assert.NoError(t, err)
	_, err = c.GetMetaInfo(context.Background())
	assert.NoError(t, err)
}
