package editor

import (
	"context"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/metric"
	"github.com/ggolani/streamline/testutil"
	"github.com/ggolani/streamline/topology"
)

const testTopologyID = 7

type mockConfigurer struct {
	mock.Mock
}

func (m *mockConfigurer) ConfigureEdge(ctx context.Context, req EdgeRequest) (*entitystore.Entity, error) {
	args := m.Called(ctx, req)
	e, _ := args.Get(0).(*entitystore.Entity)
	return e, args.Error(1)
}

type ManagerSuite struct {
	suite.Suite
	ctx      context.Context
	store    *entitystore.Memory
	builder  *testutil.TopologyBuilder
	graph    *topology.Graph
	notes    *Recorder
	refresh  *testutil.RefreshCounter
	registry *metric.MetricsRegistry
	manager  *Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = entitystore.NewMemory(entitystore.Scope{TopologyID: testTopologyID, VersionID: 1})
	s.builder = testutil.NewTopologyBuilder(s.store)
	s.graph = topology.NewGraph()
	s.notes = &Recorder{}
	s.refresh = &testutil.RefreshCounter{}
	s.manager = s.newManager()
}

// newManager builds a manager over the suite graph. Each manager gets its
// own registry.
func (s *ManagerSuite) newManager(opts ...Option) *Manager {
	s.registry = metric.NewMetricsRegistry()
	opts = append([]Option{
		WithNotifier(s.notes),
		WithMetrics(s.registry),
	}, opts...)
	m, err := NewManager(s.store, s.graph, testTopologyID, opts...)
	s.Require().NoError(err)
	return m
}

// load builds the seeded topology and hydrates Graph State from it
func (s *ManagerSuite) load() {
	s.Require().NoError(s.builder.Build(s.ctx))
	s.Require().NoError(s.manager.Load(s.ctx))
	s.store.ResetCalls()
}

func (s *ManagerSuite) node(name string) *topology.Node {
	n, ok := s.graph.NodeByName(name)
	s.Require().True(ok, "node %s in graph", name)
	return n
}

func (s *ManagerSuite) storedMeta() *topology.MetaInfo {
	meta, err := s.store.Meta().MetaInfo()
	s.Require().NoError(err)
	return meta
}

func (s *ManagerSuite) TestCreateNodes_ChainsEdges() {
	res := s.manager.CreateNodes(s.ctx, []NodeSpec{
		{ParentType: topology.ParentSource, Subtype: "KAFKA", Name: "Kafka", BundleID: testutil.BundleKafka, X: 10, Y: 20},
		{ParentType: topology.ParentProcessor, Subtype: "PARSER", Name: "Parser", BundleID: testutil.BundleParser, X: 200, Y: 20},
	}, s.refresh.Func())

	s.Require().True(res.OK(), "batch: %v", res.Err())
	kafka, parser := s.node("Kafka"), s.node("Parser")
	s.True(kafka.Persisted())
	s.True(parser.Persisted())

	edges := s.graph.Edges()
	s.Require().Len(edges, 1)
	s.Same(kafka, edges[0].Source)
	s.Same(parser, edges[0].Target)
	s.Equal(1, s.store.Count(topology.CategoryEdges))
	s.Equal(GroupingShuffle, edges[0].Grouping.Grouping)

	s.ElementsMatch([]string{"Kafka", "Parser"}, s.graph.Names().List())

	meta := s.storedMeta()
	rec, ok := meta.Lookup(topology.ParentSource, kafka.ID)
	s.Require().True(ok)
	s.Equal(10.0, rec.X)
	_, ok = meta.Lookup(topology.ParentProcessor, parser.ID)
	s.True(ok)
	s.Len(s.store.CallsFor(entitystore.OpPutMeta, "metadata"), 1, "metadata is written once")

	created, _ := s.store.Entity(topology.CategoryProcessors, parser.ID)
	s.NotNil(created.OutputStreamIDs, "processors are created with an empty output stream list")

	s.Equal(1, s.refresh.Count())
	s.NotZero(s.manager.LastChange())
	s.Empty(s.notes.All())
}

func (s *ManagerSuite) TestCreateNodes_AllocatesUniqueNames() {
	s.builder.AddSource("Kafka", "KAFKA")
	s.load()

	res := s.manager.CreateNodes(s.ctx, []NodeSpec{
		{ParentType: topology.ParentSource, Subtype: "KAFKA", Name: "Kafka", BundleID: testutil.BundleKafka},
	}, nil)

	s.Require().True(res.OK())
	s.node("Kafka-1")
	s.ElementsMatch([]string{"Kafka", "Kafka-1"}, s.graph.Names().List())
	creates := s.store.CallsFor(entitystore.OpCreate, topology.CategorySources)
	s.Require().Len(creates, 1)
	s.Equal("Kafka-1", creates[0].Body.Name)
}

func (s *ManagerSuite) TestCreateNodes_NameTakenByUnknownBundle() {
	s.store.Seed(topology.CategoryProcessors, &entitystore.Entity{Name: "Parser", BundleID: 999})
	s.load()

	res := s.manager.CreateNodes(s.ctx, []NodeSpec{
		{ParentType: topology.ParentProcessor, Subtype: "PARSER", Name: "Parser", BundleID: testutil.BundleParser},
	}, nil)

	s.Require().True(res.OK(), "batch: %v", res.Err())
	creates := s.store.CallsFor(entitystore.OpCreate, topology.CategoryProcessors)
	s.Require().Len(creates, 1)
	s.Equal("Parser-1", creates[0].Body.Name)
	s.ElementsMatch([]string{"Parser", "Parser-1"}, s.graph.Names().List())
}

func (s *ManagerSuite) TestCreateNodes_CustomNamesRecorded() {
	res := s.manager.CreateNodes(s.ctx, []NodeSpec{
		{ParentType: topology.ParentProcessor, Subtype: "CUSTOM", Name: "Enrich", BundleID: testutil.BundleCustom},
		{ParentType: topology.ParentProcessor, Subtype: "CUSTOM", Name: "Enrich", BundleID: testutil.BundleCustom},
	}, nil)
	s.Require().True(res.OK())

	s.ElementsMatch([]topology.CustomName{
		{UIName: "Enrich", CustomProcessorName: "Enrich"},
		{UIName: "Enrich-1", CustomProcessorName: "Enrich"},
	}, s.storedMeta().CustomNames)
}

func (s *ManagerSuite) TestCreateNodes_RejectedItemSkipped() {
	s.store.Reject(entitystore.OpCreate, topology.CategorySinks, 0, "Bundle HDFS not available")

	res := s.manager.CreateNodes(s.ctx, []NodeSpec{
		{ParentType: topology.ParentSource, Subtype: "KAFKA", Name: "Kafka", BundleID: testutil.BundleKafka},
		{ParentType: topology.ParentProcessor, Subtype: "PARSER", Name: "Parser", BundleID: testutil.BundleParser},
		{ParentType: topology.ParentSink, Subtype: "HDFS", Name: "HDFS", BundleID: testutil.BundleHDFS},
	}, s.refresh.Func())

	s.Require().Len(res.Failed(), 1)
	s.Equal(StepCreate, res.Failed()[0].Step)
	s.Len(s.graph.Nodes(), 2)
	s.Len(s.graph.Edges(), 1, "only the accepted pair is chained")
	s.False(s.graph.Names().Contains("HDFS"), "rejected name is released")
	s.Equal([]string{"Bundle HDFS not available"}, s.notes.Messages(LevelError))
	s.Equal(1, s.refresh.Count())

	meta := s.storedMeta()
	s.Empty(meta.Sinks)
	s.Len(meta.Sources, 1)
}

func (s *ManagerSuite) TestCreateEdge_ValidatorRejectsWithoutRemoteCall() {
	s.builder.AddSource("Kafka", "KAFKA").AddProcessor("Parser", "PARSER")
	s.load()
	s.manager = s.newManager(WithValidator(topology.ValidatorFunc(func(_, _ *topology.Node) bool { return false })))

	edge, err := s.manager.CreateEdge(s.ctx, s.node("Kafka"), s.node("Parser"), s.refresh.Func())

	s.Nil(edge)
	s.Require().Error(err)
	s.True(errors.IsInvalid(err))
	s.ErrorIs(err, errors.ErrEdgeRefused)
	s.Empty(s.store.Calls())
	s.Empty(s.graph.Edges())
	s.Equal([]string{"Kafka cannot be connected to Parser"}, s.notes.Messages(LevelError))
	s.Zero(s.refresh.Count())
}

func (s *ManagerSuite) TestCreateEdge_ReverseEdgeNormalized() {
	s.builder.AddSource("A", "KAFKA").AddProcessor("B", "PARSER").AddStream("B", "b_out").Connect("A", "B")
	s.load()
	a, b := s.node("A"), s.node("B")

	edge, err := s.manager.CreateEdge(s.ctx, b, a, s.refresh.Func())
	s.Require().NoError(err)
	s.Require().NotNil(edge)

	edges := s.graph.Edges()
	s.Require().Len(edges, 1)
	s.Same(b, edges[0].Source)
	s.Same(a, edges[0].Target)
	s.Equal(1, s.refresh.Count())

	// a second request for the same direction is a no-op
	s.store.ResetCalls()
	again, err := s.manager.CreateEdge(s.ctx, b, a, nil)
	s.Require().NoError(err)
	s.Same(edge, again)
	s.Empty(s.store.Calls())
}

func (s *ManagerSuite) TestCreateEdge_TagsRuleSourceAndHandsOff() {
	s.builder.AddProcessor("Rule", "RULE").AddProcessor("Parser", "PARSER")
	s.load()

	configurer := &mockConfigurer{}
	configurer.On("ConfigureEdge", mock.Anything, mock.MatchedBy(func(req EdgeRequest) bool {
		return req.SourceEntity.Type == "RULE" && req.Target.UIName == "Parser" && req.Graph == s.graph
	})).Return(&entitystore.Entity{
		ID:              99,
		Timestamp:       12345,
		StreamGroupings: []topology.StreamGrouping{{StreamID: 3, Grouping: "FIELDS", Fields: []string{"id"}}},
	}, nil).Once()
	s.manager = s.newManager(WithConfigurer(configurer))

	edge, err := s.manager.CreateEdge(s.ctx, s.node("Rule"), s.node("Parser"), nil)
	s.Require().NoError(err)
	s.Equal(int64(99), edge.ID)
	s.Equal([]string{"id"}, edge.Grouping.Fields)
	s.Equal(int64(12345), s.manager.LastChange())
	configurer.AssertExpectations(s.T())
}

func (s *ManagerSuite) TestCreateEdge_Cancelled() {
	s.builder.AddSource("Kafka", "KAFKA").AddProcessor("Parser", "PARSER")
	s.load()

	configurer := &mockConfigurer{}
	configurer.On("ConfigureEdge", mock.Anything, mock.Anything).Return(nil, nil).Once()
	s.manager = s.newManager(WithConfigurer(configurer))

	edge, err := s.manager.CreateEdge(s.ctx, s.node("Kafka"), s.node("Parser"), s.refresh.Func())
	s.NoError(err)
	s.Nil(edge)
	s.Empty(s.graph.Edges())
	s.Zero(s.refresh.Count())
}

func (s *ManagerSuite) TestCreateEdge_SourceFetchFailure() {
	s.builder.AddSource("Kafka", "KAFKA").AddProcessor("Parser", "PARSER")
	s.load()
	s.store.Reject(entitystore.OpGet, topology.CategorySources, s.builder.ID("Kafka"), "Source not found")

	_, err := s.manager.CreateEdge(s.ctx, s.node("Kafka"), s.node("Parser"), nil)
	s.Require().Error(err)
	s.True(errors.IsInvalid(err))
	s.Equal([]string{"Source not found"}, s.notes.Messages(LevelError))
	s.Zero(s.store.Count(topology.CategoryEdges))
}

func (s *ManagerSuite) TestDeleteNode_StripsRuleActions() {
	s.builder.
		AddSource("Kafka", "KAFKA").
		AddProcessor("Rule", "RULE").
		AddProcessor("Parser", "PARSER").
		AddSink("HDFS", "HDFS").
		AddStream("Parser", "parser_out").
		AddRule("Rule", "Parser", "HDFS").
		AddRule("Rule", "HDFS").
		Connect("Kafka", "Rule").
		Connect("Rule", "Parser").
		Connect("Rule", "HDFS")
	s.load()
	parser := s.node("Parser")
	ruleIDs := s.mustEntity(topology.CategoryProcessors, s.builder.ID("Rule")).RuleIDs()
	s.Require().Len(ruleIDs, 2)

	res := s.manager.DeleteNode(s.ctx, parser, s.refresh.Func())
	s.Require().True(res.OK(), "batch: %v", res.Err())

	// remote
	updates := s.store.CallsFor(entitystore.OpUpdate, topology.CategoryRules)
	s.Require().Len(updates, 1, "only rules that named Parser are updated")
	s.Equal(ruleIDs[0], updates[0].ID)
	stripped := s.mustEntity(topology.CategoryRules, ruleIDs[0])
	s.False(stripped.HasAction("Parser"))
	s.True(stripped.HasAction("HDFS"))

	_, ok := s.store.Entity(topology.CategoryProcessors, parser.ID)
	s.False(ok)
	_, ok = s.store.Entity(topology.CategoryEdges, s.builder.EdgeID("Rule", "Parser"))
	s.False(ok)
	s.Zero(s.store.Count(topology.CategoryStreams))
	s.Len(s.store.CallsFor(entitystore.OpDelete, topology.CategoryRules), 0, "parser owns no rules")
	_, ok = s.storedMeta().Lookup(topology.ParentProcessor, parser.ID)
	s.False(ok)

	// local
	s.False(s.graph.Contains(parser))
	for _, e := range s.graph.Edges() {
		s.False(e.Touches(parser))
	}
	s.Len(s.graph.Edges(), 2)
	s.False(s.graph.Names().Contains("Parser"))
	_, ok = s.graph.Meta().Lookup(topology.ParentProcessor, parser.ID)
	s.False(ok)
	s.Equal(1, s.refresh.Count())
}

func (s *ManagerSuite) TestDeleteNode_RuleNodeDeletesItsRules() {
	s.builder.
		AddSource("Kafka", "KAFKA").
		AddProcessor("Rule", "RULE").
		AddRule("Rule").
		AddRule("Rule").
		Connect("Kafka", "Rule")
	s.load()

	res := s.manager.DeleteNode(s.ctx, s.node("Rule"), nil)
	s.Require().True(res.OK(), "batch: %v", res.Err())
	s.Len(s.store.CallsFor(entitystore.OpDelete, topology.CategoryRules), 2)
	s.Zero(s.store.Count(topology.CategoryRules))
	s.Empty(s.graph.Edges())
}

func (s *ManagerSuite) TestDeleteNode_FetchFailureLeavesStateAlone() {
	s.builder.AddSource("Kafka", "KAFKA").AddProcessor("Parser", "PARSER").Connect("Kafka", "Parser")
	s.load()
	parser := s.node("Parser")
	s.store.Reject(entitystore.OpGet, topology.CategoryProcessors, parser.ID, "Processor unavailable")

	res := s.manager.DeleteNode(s.ctx, parser, s.refresh.Func())

	s.False(res.OK())
	s.Empty(s.store.CallsFor(entitystore.OpDelete, topology.CategoryEdges))
	s.Empty(s.store.CallsFor(entitystore.OpDelete, topology.CategoryProcessors))
	s.Empty(s.store.CallsFor(entitystore.OpPutMeta, "metadata"))
	s.True(s.graph.Contains(parser))
	s.Len(s.graph.Edges(), 1)
	s.Zero(s.refresh.Count())
	s.Equal([]string{"Processor unavailable"}, s.notes.Messages(LevelError))
}

func (s *ManagerSuite) TestDeleteNode_NodeRejectedKeepsNode() {
	s.builder.
		AddSource("Kafka", "KAFKA").
		AddProcessor("Parser", "PARSER").
		AddSink("HDFS", "HDFS").
		Connect("Kafka", "Parser").
		Connect("Parser", "HDFS")
	s.load()
	parser := s.node("Parser")
	s.store.Reject(entitystore.OpDelete, topology.CategoryProcessors, parser.ID, "Processor is referenced")
	s.store.Reject(entitystore.OpDelete, topology.CategoryEdges, s.builder.EdgeID("Parser", "HDFS"), "Edge locked")

	res := s.manager.DeleteNode(s.ctx, parser, s.refresh.Func())

	s.Len(res.Failed(), 2)
	s.ElementsMatch([]string{"Processor is referenced", "Edge locked"}, s.notes.Messages(LevelError))

	// the sibling edge delete went through and is reflected; the node stays
	s.True(s.graph.Contains(parser))
	s.True(s.graph.Names().Contains("Parser"))
	_, ok := s.graph.Meta().Lookup(topology.ParentProcessor, parser.ID)
	s.True(ok)
	edges := s.graph.Edges()
	s.Require().Len(edges, 1)
	s.Equal("HDFS", edges[0].Target.UIName)
	s.Equal(1, s.refresh.Count())
}

func (s *ManagerSuite) TestDeleteNode_Unknown() {
	res := s.manager.DeleteNode(s.ctx, &topology.Node{ID: 42, UIName: "ghost"}, nil)
	s.Require().Len(res.Failed(), 1)
	s.True(errors.IsNotFound(res.Err()))
	s.Empty(s.store.Calls())
}

func (s *ManagerSuite) TestDeleteEdge_ClearsJoin() {
	s.builder.
		AddSource("Kafka", "KAFKA").
		AddProcessor("Join", "JOIN").
		SetProperty("Join", "joins", []any{map[string]any{"stream": "left"}}).
		SetProperty("Join", "from", map[string]any{"stream": "right"}).
		SetProperty("Join", "parallelism", 2).
		Connect("Kafka", "Join")
	s.load()
	edge, ok := s.graph.Edge(s.builder.EdgeID("Kafka", "Join"))
	s.Require().True(ok)
	s.graph.SelectEdge(edge)

	res := s.manager.DeleteEdge(s.ctx, edge, s.refresh.Func())
	s.Require().True(res.OK(), "batch: %v", res.Err())

	join := s.mustEntity(topology.CategoryProcessors, s.builder.ID("Join"))
	props := join.Properties()
	s.Equal([]any{}, props["joins"])
	s.Equal(map[string]any{}, props["from"])
	s.EqualValues(2, props["parallelism"], "unrelated properties survive")

	s.Empty(s.graph.Edges())
	s.Nil(s.graph.SelectedEdge())
	s.Equal(1, s.refresh.Count())
}

func (s *ManagerSuite) TestDeleteEdge_StripsActionFromRuleSource() {
	s.builder.
		AddProcessor("Window", "WINDOW").
		AddProcessor("Parser", "PARSER").
		AddRule("Window", "Parser").
		AddRule("Window", "Other").
		Connect("Window", "Parser")
	s.load()
	edge, _ := s.graph.Edge(s.builder.EdgeID("Window", "Parser"))

	res := s.manager.DeleteEdge(s.ctx, edge, nil)
	s.Require().True(res.OK(), "batch: %v", res.Err())

	updates := s.store.CallsFor(entitystore.OpUpdate, topology.CategoryWindows)
	s.Require().Len(updates, 1)
	s.False(updates[0].Body.HasAction("Parser"))
	s.Len(s.store.CallsFor(entitystore.OpGet, topology.CategoryWindows), 2)
	s.Empty(s.store.CallsFor(entitystore.OpUpdate, topology.CategoryProcessors), "parser is not a join")
}

func (s *ManagerSuite) TestDeleteEdge_BranchSourceKeepsActions() {
	s.builder.
		AddProcessor("Branch", "BRANCH").
		AddProcessor("Parser", "PARSER").
		AddRule("Branch", "Parser").
		Connect("Branch", "Parser")
	s.load()
	edge, _ := s.graph.Edge(s.builder.EdgeID("Branch", "Parser"))

	res := s.manager.DeleteEdge(s.ctx, edge, nil)
	s.Require().True(res.OK(), "batch: %v", res.Err())

	s.Empty(s.store.CallsFor(entitystore.OpGet, topology.CategoryBranchRules))
	s.Empty(s.store.CallsFor(entitystore.OpUpdate, topology.CategoryBranchRules))
	s.Empty(s.graph.Edges())
}

func (s *ManagerSuite) TestDeleteEdge_RejectedKeepsEdge() {
	s.builder.AddSource("Kafka", "KAFKA").AddProcessor("Parser", "PARSER").Connect("Kafka", "Parser")
	s.load()
	edge, _ := s.graph.Edge(s.builder.EdgeID("Kafka", "Parser"))
	s.store.Reject(entitystore.OpDelete, topology.CategoryEdges, edge.ID, "Edge in use")

	res := s.manager.DeleteEdge(s.ctx, edge, s.refresh.Func())

	s.False(res.OK())
	s.Len(s.graph.Edges(), 1)
	s.Equal([]string{"Edge in use"}, s.notes.Messages(LevelError))
	s.Equal(1, s.refresh.Count())
}

func (s *ManagerSuite) TestUpdateParallelism() {
	s.builder.AddProcessor("Parser", "PARSER")
	s.load()
	parser := s.node("Parser")

	err := s.manager.UpdateParallelism(s.ctx, parser, 0, nil)
	s.Require().Error(err)
	s.True(errors.IsInvalid(err))
	s.Empty(s.store.Calls())

	s.Require().NoError(s.manager.UpdateParallelism(s.ctx, parser, 4, s.refresh.Func()))
	stored := s.mustEntity(topology.CategoryProcessors, parser.ID)
	s.EqualValues(4, stored.Properties()["parallelism"])
	s.Equal(4, parser.Parallelism)
	s.Equal(stored.Timestamp, s.manager.LastChange())
	s.Equal(1, s.refresh.Count())
}

func (s *ManagerSuite) TestUpdateParallelism_RejectedLeavesNode() {
	s.builder.AddProcessor("Parser", "PARSER")
	s.load()
	parser := s.node("Parser")
	s.store.Reject(entitystore.OpUpdate, topology.CategoryProcessors, parser.ID, "Invalid parallelism")

	err := s.manager.UpdateParallelism(s.ctx, parser, 8, s.refresh.Func())
	s.Require().Error(err)
	s.Equal(1, parser.Parallelism)
	s.Zero(s.refresh.Count())
}

func (s *ManagerSuite) TestMoveNode() {
	s.builder.AddSource("Kafka", "KAFKA").FailedTuples("Kafka")
	s.load()
	kafka := s.node("Kafka")

	s.Require().NoError(s.manager.MoveNode(s.ctx, kafka, 300, 400))

	rec, ok := s.storedMeta().Lookup(topology.ParentSource, kafka.ID)
	s.Require().True(ok)
	s.Equal(300.0, rec.X)
	s.Equal(400.0, rec.Y)
	s.Equal(topology.FailedTuplesStream, rec.StreamID)

	err := s.manager.MoveNode(s.ctx, &topology.Node{ID: 1000}, 1, 1)
	s.True(errors.IsNotFound(err))
}

func (s *ManagerSuite) TestEdgeDetails() {
	s.builder.AddSource("Kafka", "KAFKA").AddStream("Kafka", "kafka_out").AddProcessor("Parser", "PARSER").Connect("Kafka", "Parser")
	s.load()
	edge, _ := s.graph.Edge(s.builder.EdgeID("Kafka", "Parser"))

	details, err := s.manager.EdgeDetails(s.ctx, edge)
	s.Require().NoError(err)
	s.Equal("kafka_out", details.StreamName)
	s.Equal("SHUFFLE", details.Grouping)
}

func (s *ManagerSuite) TestSubmitSerializesCommands() {
	s.Require().NoError(s.manager.Start(s.ctx))
	defer s.manager.Stop(time.Second)

	done, err := s.manager.Submit("create_nodes", func(ctx context.Context) error {
		return s.manager.CreateNodes(ctx, []NodeSpec{
			{ParentType: topology.ParentSource, Subtype: "KAFKA", Name: "Kafka", BundleID: testutil.BundleKafka},
		}, s.refresh.Func()).Err()
	})
	s.Require().NoError(err)
	s.Require().NoError(<-done)
	s.Equal(1, s.refresh.Count())
	s.Equal(int64(1), s.manager.QueueStats().Processed)
}

func (s *ManagerSuite) TestMetricsRecorded() {
	s.manager.CreateNodes(s.ctx, []NodeSpec{
		{ParentType: topology.ParentSource, Subtype: "KAFKA", Name: "Kafka", BundleID: testutil.BundleKafka},
	}, nil)
	s.store.Reject(entitystore.OpGet, "", 0, "down")
	s.manager.DeleteNode(s.ctx, s.node("Kafka"), nil)

	m := s.manager.metrics
	s.Equal(1.0, promtestutil.ToFloat64(m.operations.WithLabelValues("create_nodes", "success")))
	s.Equal(1.0, promtestutil.ToFloat64(m.operations.WithLabelValues("delete_node", "failure")))
	s.Equal(1.0, promtestutil.ToFloat64(m.batchFailures.WithLabelValues("delete_node", string(StepFetch))))
	s.Equal(1.0, promtestutil.ToFloat64(s.registry.CoreMetrics().Notifications.WithLabelValues("error")))
	s.Equal(1.0, promtestutil.ToFloat64(s.registry.CoreMetrics().GraphNodes))
}

func (s *ManagerSuite) mustEntity(category topology.Category, id int64) *entitystore.Entity {
	e, ok := s.store.Entity(category, id)
	s.Require().True(ok, "%s#%d in store", category, id)
	return e
}

func TestNewManager_RequiresClient(t *testing.T) {
	_, err := NewManager(nil, nil, 1)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestNewManager_MetricsRegisteredOnce(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	store := entitystore.NewMemory(entitystore.Scope{TopologyID: 1})

	_, err := NewManager(store, nil, 1, WithMetrics(registry))
	require.NoError(t, err)
	_, err = NewManager(store, nil, 1, WithMetrics(registry))
	assert.Error(t, err)
}
