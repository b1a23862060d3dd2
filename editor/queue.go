package editor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/metric"
)

// Sentinel errors for command queue operations
var (
	// ErrQueueNotStarted indicates the queue hasn't been started yet
	ErrQueueNotStarted = errors.New("command queue not started")

	// ErrQueueStopped indicates the queue has been stopped
	ErrQueueStopped = errors.New("command queue stopped")

	// ErrQueueAlreadyStarted indicates Start() was called twice
	ErrQueueAlreadyStarted = errors.New("command queue already started")

	// ErrQueueFull indicates the queue is at capacity
	ErrQueueFull = errors.New("command queue full")

	// ErrStopTimeout indicates the queue didn't drain within the timeout
	ErrStopTimeout = errors.New("timeout waiting for command queue to stop")
)

// Command is one user action run against the manager
type Command func(ctx context.Context) error

type queued struct {
	name string
	cmd  Command
	done chan error
}

// Queue runs commands one at a time in submission order, so a user action
// never interleaves with the remote round trips of the previous one.
type Queue struct {
	size   int
	work   chan queued
	logger *slog.Logger
	wg     sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted int64
	processed int64
	failed    int64
	dropped   int64

	metrics *queueMetrics
}

type queueMetrics struct {
	depth     prometheus.Gauge
	submitted prometheus.Counter
	dropped   prometheus.Counter
	duration  *prometheus.HistogramVec
}

// QueueStats represents command queue statistics
type QueueStats struct {
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

// NewQueue creates a command queue holding up to size pending commands
func NewQueue(size int, logger *slog.Logger, registry *metric.MetricsRegistry) (*Queue, error) {
	if size <= 0 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		size:   size,
		work:   make(chan queued, size),
		logger: logger,
	}
	if registry != nil {
		if err := q.initializeMetrics(registry); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Queue) initializeMetrics(registry *metric.MetricsRegistry) error {
	m := &queueMetrics{
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamline",
			Subsystem: "editor_queue",
			Name:      "depth",
			Help:      "Commands waiting in the editor queue",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamline",
			Subsystem: "editor_queue",
			Name:      "submitted_total",
			Help:      "Total commands submitted",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamline",
			Subsystem: "editor_queue",
			Name:      "dropped_total",
			Help:      "Total commands refused because the queue was full",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamline",
			Subsystem: "editor_queue",
			Name:      "command_duration_seconds",
			Help:      "Time spent running queued commands",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"command", "status"}),
	}
	if err := registry.RegisterGauge("editor_queue", "depth", m.depth); err != nil {
		return err
	}
	if err := registry.RegisterCounter("editor_queue", "submitted", m.submitted); err != nil {
		return err
	}
	if err := registry.RegisterCounter("editor_queue", "dropped", m.dropped); err != nil {
		return err
	}
	if err := registry.RegisterHistogramVec("editor_queue", "command_duration", m.duration); err != nil {
		return err
	}
	q.metrics = m
	return nil
}

// Start launches the worker. Commands run with ctx's values but not its
// cancellation: a started command always finishes its remote calls, and
// the worker only exits once Stop has drained the queue.
func (q *Queue) Start(ctx context.Context) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if q.started {
		return ErrQueueAlreadyStarted
	}
	q.wg.Add(1)
	go q.worker(context.WithoutCancel(ctx))
	q.started = true
	return nil
}

// Submit enqueues cmd without blocking. The returned channel receives the
// command's error once it has run.
func (q *Queue) Submit(name string, cmd Command) (<-chan error, error) {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if !q.started {
		return nil, ErrQueueNotStarted
	}
	if q.stopped {
		return nil, ErrQueueStopped
	}

	item := queued{name: name, cmd: cmd, done: make(chan error, 1)}
	select {
	case q.work <- item:
		atomic.AddInt64(&q.submitted, 1)
		if q.metrics != nil {
			q.metrics.submitted.Inc()
			q.metrics.depth.Set(float64(len(q.work)))
		}
		return item.done, nil
	default:
		atomic.AddInt64(&q.dropped, 1)
		if q.metrics != nil {
			q.metrics.dropped.Inc()
		}
		return nil, ErrQueueFull
	}
}

// Stop refuses new commands and waits for queued ones to finish. On
// ErrStopTimeout the queue stays closed and the worker keeps draining.
func (q *Queue) Stop(timeout time.Duration) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()

	if !q.started || q.stopped {
		return nil
	}
	close(q.work)
	q.stopped = true

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current queue statistics
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		QueueSize:  q.size,
		QueueDepth: len(q.work),
		Submitted:  atomic.LoadInt64(&q.submitted),
		Processed:  atomic.LoadInt64(&q.processed),
		Failed:     atomic.LoadInt64(&q.failed),
		Dropped:    atomic.LoadInt64(&q.dropped),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for item := range q.work {
		q.run(ctx, item)
	}
}

func (q *Queue) run(ctx context.Context, item queued) {
	start := time.Now()
	err := item.cmd(ctx)
	duration := time.Since(start)

	atomic.AddInt64(&q.processed, 1)
	status := "success"
	if err != nil {
		atomic.AddInt64(&q.failed, 1)
		status = "error"
		q.logger.Debug("queued command failed", "command", item.name, "error", err)
	}
	if q.metrics != nil {
		q.metrics.depth.Set(float64(len(q.work)))
		q.metrics.duration.WithLabelValues(item.name, status).Observe(duration.Seconds())
	}
	item.done <- err
	close(item.done)
}
