package entitystore

import (
	"context"
	"log/slog"
	"time"

	"github.com/ggolani/streamline/metric"
	"github.com/ggolani/streamline/topology"
)

// Instrumented wraps a Client, recording every call in the store metrics
// and logging failures.
type Instrumented struct {
	next    Client
	metrics *metric.Metrics
	logger  *slog.Logger
}

var _ Client = (*Instrumented)(nil)

// NewInstrumented wraps next. A nil metrics disables recording.
func NewInstrumented(next Client, metrics *metric.Metrics, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{
		next:    next,
		metrics: metrics,
		logger:  logger.With("component", "entitystore"),
	}
}

// Unwrap returns the wrapped client
func (c *Instrumented) Unwrap() Client {
	return c.next
}

func (c *Instrumented) observe(op Op, category topology.Category, id int64, start time.Time, err error) {
	duration := time.Since(start)
	c.metrics.RecordStoreRequest(string(op), string(category), err, duration)
	if err != nil {
		c.logger.Warn("store request failed",
			"op", op, "category", category, "id", id, "duration", duration, "error", err)
		return
	}
	c.logger.Debug("store request", "op", op, "category", category, "id", id, "duration", duration)
}

// CreateNode implements Client
func (c *Instrumented) CreateNode(ctx context.Context, category topology.Category, body *Entity) (*Entity, error) {
	start := time.Now()
	e, err := c.next.CreateNode(ctx, category, body)
	var id int64
	if e != nil {
		id = e.ID
	}
	c.observe(OpCreate, category, id, start, err)
	return e, err
}

// GetNode implements Client
func (c *Instrumented) GetNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	start := time.Now()
	e, err := c.next.GetNode(ctx, category, id)
	c.observe(OpGet, category, id, start, err)
	return e, err
}

// ListNodes implements Client
func (c *Instrumented) ListNodes(ctx context.Context, category topology.Category) ([]*Entity, error) {
	start := time.Now()
	list, err := c.next.ListNodes(ctx, category)
	c.observe(OpList, category, 0, start, err)
	return list, err
}

// UpdateNode implements Client
func (c *Instrumented) UpdateNode(ctx context.Context, category topology.Category, id int64, body *Entity) (*Entity, error) {
	start := time.Now()
	e, err := c.next.UpdateNode(ctx, category, id, body)
	c.observe(OpUpdate, category, id, start, err)
	return e, err
}

// DeleteNode implements Client
func (c *Instrumented) DeleteNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	start := time.Now()
	e, err := c.next.DeleteNode(ctx, category, id)
	c.observe(OpDelete, category, id, start, err)
	return e, err
}

// PutMetaInfo implements Client
func (c *Instrumented) PutMetaInfo(ctx context.Context, meta *MetaInfoEnvelope) (*MetaInfoEnvelope, error) {
	start := time.Now()
	out, err := c.next.PutMetaInfo(ctx, meta)
	c.observe(OpPutMeta, "metadata", 0, start, err)
	return out, err
}

// GetMetaInfo implements Client
func (c *Instrumented) GetMetaInfo(ctx context.Context) (*MetaInfoEnvelope, error) {
	start := time.Now()
	out, err := c.next.GetMetaInfo(ctx)
	c.observe(OpGetMeta, "metadata", 0, start, err)
	return out, err
}

// ListBundles implements Client
func (c *Instrumented) ListBundles(ctx context.Context, bundleType string) ([]*Bundle, error) {
	start := time.Now()
	out, err := c.next.ListBundles(ctx, bundleType)
	c.observe(OpListBundles, topology.Category(bundleType), 0, start, err)
	return out, err
}
