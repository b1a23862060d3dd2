package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/metric"
	"github.com/ggolani/streamline/topology"
)

// Refresh asks the rendering layer to redraw from Graph State. It is called
// once an operation's remote effects have settled.
type Refresh func()

func (r Refresh) call() {
	if r != nil {
		r()
	}
}

// NodeSpec is a request to place a component on the canvas
type NodeSpec struct {
	ParentType topology.ParentType `json:"parentType"`
	Subtype    string              `json:"subType"`
	Name       string              `json:"name"`
	BundleID   int64               `json:"topologyComponentBundleId"`
	Label      string              `json:"nodeLabel,omitempty"`
	X          float64             `json:"x"`
	Y          float64             `json:"y"`
}

// Manager keeps Graph State, the persisted metadata and the entity store
// consistent across create, connect and delete operations. Graph State is
// only changed after the remote requests of an operation have settled.
//
// State-changing operations hold an operation lock for their whole
// duration, so they never interleave.
type Manager struct {
	client      entitystore.Client
	graph       *topology.Graph
	topologyID  int64
	validator   topology.Validator
	configurer  EdgeConfigurer
	notifier    Notifier
	logger      *slog.Logger
	registry    *metric.MetricsRegistry
	metrics     *editorMetrics
	concurrency int
	queueSize   int
	queue       *Queue

	onLastChange func(int64)
	lastChange   atomic.Int64

	opMu sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithValidator sets the edge validator. The default accepts every edge.
func WithValidator(v topology.Validator) Option {
	return func(m *Manager) {
		m.validator = v
	}
}

// WithConfigurer sets the edge configuration step
func WithConfigurer(c EdgeConfigurer) Option {
	return func(m *Manager) {
		m.configurer = c
	}
}

// WithNotifier sets where user notifications go
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics registers editor metrics with registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(m *Manager) {
		m.registry = registry
	}
}

// WithConcurrency bounds the number of in-flight requests per batch. Zero
// means unbounded.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		m.concurrency = n
	}
}

// WithQueueSize sets how many submitted commands may wait
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		m.queueSize = n
	}
}

// WithLastChangeHook is called with every new last-change timestamp
func WithLastChangeHook(fn func(int64)) Option {
	return func(m *Manager) {
		m.onLastChange = fn
	}
}

// NewManager creates a manager for one topology
func NewManager(client entitystore.Client, graph *topology.Graph, topologyID int64, opts ...Option) (*Manager, error) {
	if client == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Manager", "NewManager", "entity store client required")
	}
	if graph == nil {
		graph = topology.NewGraph()
	}

	m := &Manager{
		client:     client,
		graph:      graph,
		topologyID: topologyID,
		validator:  topology.AllowAll{},
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "editor", "topology_id", topologyID)
	if m.notifier == nil {
		m.notifier = LogNotifier{Logger: m.logger}
	}
	if m.configurer == nil {
		m.configurer = DirectEdgeConfigurer{Client: client}
	}

	metrics, err := newEditorMetrics(m.registry)
	if err != nil {
		return nil, errors.Wrap(err, "Manager", "NewManager", "register metrics")
	}
	m.metrics = metrics

	queue, err := NewQueue(m.queueSize, m.logger, m.registry)
	if err != nil {
		return nil, errors.Wrap(err, "Manager", "NewManager", "create command queue")
	}
	m.queue = queue

	return m, nil
}

// Graph returns the Graph State the manager maintains
func (m *Manager) Graph() *topology.Graph {
	return m.graph
}

// Validator returns the edge validator in use
func (m *Manager) Validator() topology.Validator {
	return m.validator
}

// LastChange returns the timestamp of the most recent confirmed change
func (m *Manager) LastChange() int64 {
	return m.lastChange.Load()
}

func (m *Manager) setLastChange(ts int64) {
	if ts == 0 {
		return
	}
	m.lastChange.Store(ts)
	if m.onLastChange != nil {
		m.onLastChange(ts)
	}
}

// Start starts the command queue
func (m *Manager) Start(ctx context.Context) error {
	return m.queue.Start(ctx)
}

// Stop drains the command queue
func (m *Manager) Stop(timeout time.Duration) error {
	return m.queue.Stop(timeout)
}

// Submit runs cmd on the command queue after every command submitted before it
func (m *Manager) Submit(name string, cmd Command) (<-chan error, error) {
	return m.queue.Submit(name, cmd)
}

// QueueStats returns the command queue statistics
func (m *Manager) QueueStats() QueueStats {
	return m.queue.Stats()
}

func (m *Manager) notify(level Level, message string) {
	m.metrics.recordNotification(level)
	m.notifier.Notify(Notification{Level: level, Message: message, Time: time.Now()})
}

func (m *Manager) notifyError(err error) {
	m.notify(LevelError, errors.UserMessage(err))
}

// report surfaces every failure of a batch to the user
func (m *Manager) report(operation string, res BatchResult, start time.Time) {
	for _, o := range res.Failed() {
		m.logger.Warn("request failed", "operation", operation, "step", o.Step,
			"category", o.Category, "id", o.ID, "error", o.Err)
		m.notifyError(o.Err)
	}
	m.metrics.recordBatch(operation, res, time.Since(start))
}

func (m *Manager) refresh(r Refresh) {
	m.metrics.recordRefresh(len(m.graph.Nodes()), len(m.graph.Edges()))
	r.call()
}

func (m *Manager) fanout() *fanout {
	return newFanout(m.concurrency)
}

func (m *Manager) putMeta(ctx context.Context, meta *topology.MetaInfo) (*entitystore.Entity, error) {
	env, err := entitystore.NewMetaInfoEnvelope(m.topologyID, meta)
	if err != nil {
		return nil, err
	}
	stored, err := m.client.PutMetaInfo(ctx, env)
	if err != nil {
		return nil, err
	}
	return &entitystore.Entity{ID: stored.TopologyID, Timestamp: stored.Timestamp}, nil
}

// CreateNodes creates a node per spec. Names are allocated up front and
// requests are issued concurrently. Rejected items are reported and
// skipped; accepted consecutive items are chained with edges; metadata is
// written once for the accepted nodes before refresh.
func (m *Manager) CreateNodes(ctx context.Context, specs []NodeSpec, refresh Refresh) BatchResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	start := time.Now()
	if len(specs) == 0 {
		return BatchResult{}
	}

	names := m.graph.Names()
	meta := m.graph.Meta()
	nodes := make([]*topology.Node, len(specs))
	for i, spec := range specs {
		n := topology.NewNode(spec.ParentType, spec.Subtype, "", spec.BundleID)
		desired := spec.Name
		if desired == "" {
			desired = n.TypeName
		}
		n.UIName = names.Allocate(desired)
		n.X, n.Y = spec.X, spec.Y
		if spec.Label != "" {
			n.Label = spec.Label
		}
		if n.Subtype == topology.SubtypeCustom {
			meta.AddCustomName(n.UIName, desired)
		}
		nodes[i] = n
	}

	created := make([]*entitystore.Entity, len(nodes))
	f := m.fanout()
	for i, n := range nodes {
		body := &entitystore.Entity{
			Name:     n.UIName,
			Config:   entitystore.Config{},
			BundleID: n.BundleID,
		}
		if n.ParentType == topology.ParentProcessor {
			body.OutputStreamIDs = []int64{}
		}
		category := n.Category()
		f.Go(StepCreate, category, 0, func() (*entitystore.Entity, error) {
			e, err := m.client.CreateNode(ctx, category, body)
			if err != nil {
				return nil, err
			}
			created[i] = e
			return e, nil
		})
	}
	res := f.Wait()

	first := true
	for i, n := range nodes {
		e := created[i]
		if e == nil {
			names.Release(n.UIName)
			meta.RemoveCustomName(n.UIName)
			continue
		}
		n.ID = e.ID
		m.graph.AddNode(n)
		meta.Upsert(n)
		if first {
			m.setLastChange(e.Timestamp)
			first = false
		}
	}

	for i := 1; i < len(nodes); i++ {
		if created[i-1] == nil || created[i] == nil {
			continue
		}
		edge, err := m.createEdge(ctx, nodes[i-1], nodes[i])
		o := Outcome{Step: StepCreateEdge, Category: topology.CategoryEdges, Err: err}
		if edge != nil {
			o.ID = edge.ID
		}
		res.add(o)
	}

	if !first {
		_, err := m.putMeta(ctx, meta)
		res.add(Outcome{Step: StepPutMetaInfo, Category: "metadata", ID: m.topologyID, Err: err})
		if err == nil {
			m.graph.SetMeta(meta)
		}
	}

	// createEdge notifies its own failures
	reported := BatchResult{}
	for _, o := range res.Outcomes {
		if o.Step != StepCreateEdge {
			reported.add(o)
		}
	}
	m.report("create_nodes", reported, start)
	m.logger.Debug("nodes created", "requested", len(specs), "failed", len(res.Failed()))

	m.refresh(refresh)
	return res
}

// CreateEdge connects source to target. The validator is consulted before
// anything else. An edge in the reverse direction is dropped locally; an
// existing source->target edge makes this a no-op.
func (m *Manager) CreateEdge(ctx context.Context, source, target *topology.Node, refresh Refresh) (*topology.Edge, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	start := time.Now()
	edges := len(m.graph.Edges())
	edge, err := m.createEdge(ctx, source, target)
	m.metrics.recordOperation("create_edge", err, time.Since(start))
	if errors.Is(err, errors.ErrEdgeRefused) {
		return nil, err
	}
	if edge != nil || len(m.graph.Edges()) != edges {
		m.refresh(refresh)
	}
	return edge, err
}

func (m *Manager) createEdge(ctx context.Context, source, target *topology.Node) (*topology.Edge, error) {
	if source == nil || target == nil {
		return nil, errors.WrapInvalid(errors.ErrNodeNotFound, "Manager", "CreateEdge", "resolve endpoints")
	}
	if !m.validator.CanConnect(source, target) {
		msg := fmt.Sprintf("%s cannot be connected to %s", source.TypeName, target.TypeName)
		m.metrics.recordRejection()
		m.notify(LevelError, msg)
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrEdgeRefused, msg), "Manager", "CreateEdge", "validate edge")
	}
	if !source.Persisted() || !target.Persisted() {
		return nil, errors.WrapInvalid(errors.ErrNotPersisted, "Manager", "CreateEdge", "check endpoints")
	}

	if reverse, ok := m.graph.EdgeBetween(target, source); ok {
		m.graph.RemoveEdge(reverse)
	}
	if existing, ok := m.graph.EdgeBetween(source, target); ok {
		return existing, nil
	}

	entity, err := m.client.GetNode(ctx, source.Category(), source.ID)
	if err != nil {
		m.notifyError(err)
		return nil, errors.WrapClass(err, "Manager", "CreateEdge", "fetch source")
	}
	m.setLastChange(entity.Timestamp)
	switch source.Subtype {
	case topology.SubtypeRule:
		entity.Type = "RULE"
	case topology.SubtypeWindow:
		entity.Type = "WINDOW"
	}

	confirmed, err := m.configurer.ConfigureEdge(ctx, EdgeRequest{
		Source:       source,
		Target:       target,
		SourceEntity: entity,
		Graph:        m.graph,
	})
	if err != nil {
		m.notifyError(err)
		return nil, errors.WrapClass(err, "Manager", "CreateEdge", "configure edge")
	}
	if confirmed == nil {
		m.logger.Debug("edge configuration cancelled", "source", source.UIName, "target", target.UIName)
		return nil, nil
	}

	edge := &topology.Edge{ID: confirmed.ID, Source: source, Target: target}
	if len(confirmed.StreamGroupings) > 0 {
		edge.Grouping = confirmed.StreamGroupings[0]
	}
	m.graph.AddEdge(edge)
	m.setLastChange(confirmed.Timestamp)
	return edge, nil
}

// DeleteNode removes node and everything that references it from the store,
// then from Graph State. If the node cannot be fetched nothing further is
// deleted and Graph State is left untouched.
func (m *Manager) DeleteNode(ctx context.Context, node *topology.Node, refresh Refresh) BatchResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	start := time.Now()
	if node == nil || !m.graph.Contains(node) {
		res := BatchResult{}
		res.add(Outcome{Step: StepLookup, Err: errors.WrapInvalid(errors.ErrNodeNotFound, "Manager", "DeleteNode", "lookup node")})
		m.metrics.recordBatch("delete_node", res, time.Since(start))
		return res
	}

	touching := m.graph.EdgesOf(node)

	// rule-like sources reference this node through actions
	var actionCategories []topology.Category
	for _, e := range m.graph.Incoming(node) {
		c := e.Source.Subtype.ActionCategory()
		if c == "" || containsCategory(actionCategories, c) {
			continue
		}
		actionCategories = append(actionCategories, c)
	}

	var entity *entitystore.Entity
	phase := m.fanout()
	phase.Go(StepFetch, node.Category(), node.ID, func() (*entitystore.Entity, error) {
		e, err := m.client.GetNode(ctx, node.Category(), node.ID)
		if err == nil {
			entity = e
		}
		return e, err
	})
	for _, c := range actionCategories {
		phase.Run(func(record func(Outcome)) {
			m.stripActions(ctx, c, node.UIName, record)
		})
	}
	res := phase.Wait()

	if entity == nil {
		m.report("delete_node", res, start)
		return res
	}

	meta := m.graph.Meta()
	meta.Remove(node)

	deletes := m.fanout()
	for _, id := range entity.OutputStreamRefs() {
		deletes.Go(StepDeleteStream, topology.CategoryStreams, id, func() (*entitystore.Entity, error) {
			return m.client.DeleteNode(ctx, topology.CategoryStreams, id)
		})
	}
	if rules := ruleCategory(node, entity); rules != "" {
		for _, id := range entity.RuleIDs() {
			deletes.Go(StepDeleteRule, rules, id, func() (*entitystore.Entity, error) {
				return m.client.DeleteNode(ctx, rules, id)
			})
		}
	}
	for _, e := range touching {
		deletes.Go(StepDeleteEdge, topology.CategoryEdges, e.ID, func() (*entitystore.Entity, error) {
			return m.client.DeleteNode(ctx, topology.CategoryEdges, e.ID)
		})
	}
	deletes.Go(StepPutMetaInfo, "metadata", m.topologyID, func() (*entitystore.Entity, error) {
		return m.putMeta(ctx, meta)
	})
	deletes.Go(StepDelete, node.Category(), node.ID, func() (*entitystore.Entity, error) {
		return m.client.DeleteNode(ctx, node.Category(), node.ID)
	})
	res.merge(deletes.Wait())

	m.report("delete_node", res, start)

	if o, ok := res.Find(StepDelete, node.ID); ok && !o.Failed() {
		m.graph.RemoveNode(node)
		m.graph.SelectNode(nil)
		m.graph.SelectEdge(nil)
		if o.Entity != nil {
			m.setLastChange(o.Entity.Timestamp)
		}
	} else {
		// the node survived; only drop edges the store confirmed gone
		for _, e := range touching {
			if o, ok := res.Find(StepDeleteEdge, e.ID); ok && !o.Failed() {
				m.graph.RemoveEdge(e)
			}
		}
	}

	m.refresh(refresh)
	return res
}

// stripActions removes actions named target from every entity of category
// and pushes back the entities that changed
func (m *Manager) stripActions(ctx context.Context, category topology.Category, target string, record func(Outcome)) {
	entities, err := m.client.ListNodes(ctx, category)
	record(Outcome{Step: StepList, Category: category, Err: err})
	if err != nil {
		return
	}
	for _, e := range entities {
		if !e.RemoveAction(target) {
			continue
		}
		updated, err := m.client.UpdateNode(ctx, category, e.ID, e)
		record(Outcome{Step: StepStripAction, Category: category, ID: e.ID, Entity: updated, Err: err})
	}
}

func ruleCategory(node *topology.Node, entity *entitystore.Entity) topology.Category {
	switch {
	case entity.Type == "RULE" || node.Subtype == topology.SubtypeRule:
		return topology.CategoryRules
	case entity.Type == "WINDOW" || node.Subtype == topology.SubtypeWindow:
		return topology.CategoryWindows
	default:
		return ""
	}
}

func containsCategory(list []topology.Category, c topology.Category) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}

// DeleteEdge removes edge from the store, clears join configuration on a
// join target and strips actions naming the target from a rule-like
// source. The edge leaves Graph State only if its remote delete succeeded.
func (m *Manager) DeleteEdge(ctx context.Context, edge *topology.Edge, refresh Refresh) BatchResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	start := time.Now()
	if edge == nil {
		res := BatchResult{}
		res.add(Outcome{Step: StepLookup, Err: errors.WrapInvalid(errors.ErrEdgeNotFound, "Manager", "DeleteEdge", "lookup edge")})
		m.metrics.recordBatch("delete_edge", res, time.Since(start))
		return res
	}
	source, target := edge.Source, edge.Target

	var targetEntity, sourceEntity *entitystore.Entity
	phase := m.fanout()
	phase.Go(StepDeleteEdge, topology.CategoryEdges, edge.ID, func() (*entitystore.Entity, error) {
		return m.client.DeleteNode(ctx, topology.CategoryEdges, edge.ID)
	})
	phase.Go(StepFetch, target.Category(), target.ID, func() (*entitystore.Entity, error) {
		e, err := m.client.GetNode(ctx, target.Category(), target.ID)
		if err == nil {
			targetEntity = e
		}
		return e, err
	})
	// branch rules keep their actions until the branch node itself goes
	if source.Subtype == topology.SubtypeRule || source.Subtype == topology.SubtypeWindow {
		phase.Go(StepFetch, source.Category(), source.ID, func() (*entitystore.Entity, error) {
			e, err := m.client.GetNode(ctx, source.Category(), source.ID)
			if err == nil {
				sourceEntity = e
			}
			return e, err
		})
	}
	res := phase.Wait()

	updates := m.fanout()
	if targetEntity != nil && target.Subtype == topology.SubtypeJoin && len(targetEntity.Properties()) > 0 {
		targetEntity.SetProperty("joins", []any{})
		targetEntity.SetProperty("from", map[string]any{})
		updates.Go(StepClearJoin, target.Category(), target.ID, func() (*entitystore.Entity, error) {
			return m.client.UpdateNode(ctx, target.Category(), target.ID, targetEntity)
		})
	}
	if sourceEntity != nil {
		category := source.Subtype.ActionCategory()
		for _, id := range sourceEntity.RuleIDs() {
			updates.Run(func(record func(Outcome)) {
				rule, err := m.client.GetNode(ctx, category, id)
				record(Outcome{Step: StepFetch, Category: category, ID: id, Entity: rule, Err: err})
				if err != nil || !rule.RemoveAction(target.UIName) {
					return
				}
				updated, err := m.client.UpdateNode(ctx, category, id, rule)
				record(Outcome{Step: StepStripAction, Category: category, ID: id, Entity: updated, Err: err})
			})
		}
	}
	res.merge(updates.Wait())

	m.report("delete_edge", res, start)

	if o, ok := res.Find(StepDeleteEdge, edge.ID); ok && !o.Failed() {
		m.graph.RemoveEdge(edge)
		if o.Entity != nil {
			m.setLastChange(o.Entity.Timestamp)
		}
	}
	m.graph.SelectEdge(nil)

	m.refresh(refresh)
	return res
}

// UpdateParallelism sets the node's parallelism remotely, then locally. The
// confirmed timestamp becomes the last-change marker.
func (m *Manager) UpdateParallelism(ctx context.Context, node *topology.Node, count int, refresh Refresh) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	start := time.Now()
	err := m.updateParallelism(ctx, node, count)
	m.metrics.recordOperation("update_parallelism", err, time.Since(start))
	if err != nil {
		return err
	}
	m.refresh(refresh)
	return nil
}

func (m *Manager) updateParallelism(ctx context.Context, node *topology.Node, count int) error {
	if count < 1 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: parallelism %d", errors.ErrInvalidData, count),
			"Manager", "UpdateParallelism", "validate count")
	}
	if !node.Persisted() {
		return errors.WrapInvalid(errors.ErrNotPersisted, "Manager", "UpdateParallelism", "check node")
	}

	entity, err := m.client.GetNode(ctx, node.Category(), node.ID)
	if err != nil {
		m.notifyError(err)
		return errors.WrapClass(err, "Manager", "UpdateParallelism", "fetch node")
	}
	entity.SetProperty("parallelism", count)
	updated, err := m.client.UpdateNode(ctx, node.Category(), node.ID, entity)
	if err != nil {
		m.notifyError(err)
		return errors.WrapClass(err, "Manager", "UpdateParallelism", "update node")
	}

	m.graph.SetParallelism(node, count)
	m.setLastChange(updated.Timestamp)
	return nil
}

// UpdateMetaInfo writes the node's current position into the metadata and
// persists it
func (m *Manager) UpdateMetaInfo(ctx context.Context, node *topology.Node) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.updateMetaInfo(ctx, node)
}

func (m *Manager) updateMetaInfo(ctx context.Context, node *topology.Node) error {
	start := time.Now()
	if !node.Persisted() {
		return errors.WrapInvalid(errors.ErrNotPersisted, "Manager", "UpdateMetaInfo", "check node")
	}

	meta := m.graph.Meta()
	meta.Upsert(node)
	_, err := m.putMeta(ctx, meta)
	m.metrics.recordOperation("update_metainfo", err, time.Since(start))
	if err != nil {
		m.notifyError(err)
		return errors.WrapClass(err, "Manager", "UpdateMetaInfo", "put metadata")
	}
	m.graph.SetMeta(meta)
	return nil
}

// MoveNode records a drag end: the node moves on the canvas and its
// position is persisted
func (m *Manager) MoveNode(ctx context.Context, node *topology.Node, x, y float64) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if !m.graph.Contains(node) {
		return errors.WrapInvalid(errors.ErrNodeNotFound, "Manager", "MoveNode", "lookup node")
	}
	m.graph.SetPosition(node, x, y)
	return m.updateMetaInfo(ctx, node)
}

// EdgeDetails is what the edge inspector shows for an edge
type EdgeDetails struct {
	StreamName     string   `json:"streamName"`
	Grouping       string   `json:"grouping"`
	GroupingFields []string `json:"groupingFields,omitempty"`
}

// EdgeDetails fetches the stream the edge carries
func (m *Manager) EdgeDetails(ctx context.Context, edge *topology.Edge) (EdgeDetails, error) {
	if edge == nil {
		return EdgeDetails{}, errors.WrapInvalid(errors.ErrEdgeNotFound, "Manager", "EdgeDetails", "lookup edge")
	}
	stream, err := m.client.GetNode(ctx, topology.CategoryStreams, edge.Grouping.StreamID)
	if err != nil {
		return EdgeDetails{}, errors.WrapClass(err, "Manager", "EdgeDetails", "fetch stream")
	}
	return EdgeDetails{
		StreamName:     stream.StreamID,
		Grouping:       edge.Grouping.Grouping,
		GroupingFields: edge.Grouping.Fields,
	}, nil
}
