package topology

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleGraph() (*Graph, *Node, *Node, *Node, *Edge, *Edge) {
	kafka := &Node{ID: 1, ParentType: ParentSource, TypeName: "Kafka", UIName: "Kafka", Parallelism: 1}
	parser := &Node{ID: 2, ParentType: ParentProcessor, TypeName: "Parser", UIName: "Parser", Parallelism: 1}
	hdfs := &Node{ID: 3, ParentType: ParentSink, TypeName: "Hdfs", UIName: "HDFS", Parallelism: 1}
	e1 := &Edge{ID: 10, Source: kafka, Target: parser, Grouping: StreamGrouping{StreamID: 100, Grouping: "SHUFFLE"}}
	e2 := &Edge{ID: 11, Source: parser, Target: hdfs, Grouping: StreamGrouping{StreamID: 101, Grouping: "SHUFFLE"}}

	meta := NewMetaInfo()
	for _, n := range []*Node{kafka, parser, hdfs} {
		meta.Upsert(n)
	}
	g := NewGraph()
	g.Load([]*Node{kafka, parser, hdfs}, []*Edge{e1, e2}, meta)
	return g, kafka, parser, hdfs, e1, e2
}

func TestGraphLoadRegistersNames(t *testing.T) {
	g, _, _, _, _, _ := sampleGraph()
	assert.Equal(t, []string{"Kafka", "Parser", "HDFS"}, g.Names().List())
	assert.Len(t, g.Nodes(), 3)
	assert.Len(t, g.Edges(), 2)
}

func TestGraphQueries(t *testing.T) {
	g, kafka, parser, hdfs, e1, e2 := sampleGraph()

	n, ok := g.Node(2)
	require.True(t, ok)
	assert.Same(t, parser, n)
	_, ok = g.Node(99)
	assert.False(t, ok)

	n, ok = g.NodeByName("HDFS")
	require.True(t, ok)
	assert.Same(t, hdfs, n)

	assert.ElementsMatch(t, []*Edge{e1, e2}, g.EdgesOf(parser))
	assert.Equal(t, []*Edge{e1}, g.Incoming(parser))
	assert.Equal(t, []*Edge{e2}, g.Outgoing(parser))
	assert.Empty(t, g.Incoming(kafka))

	e, ok := g.EdgeBetween(kafka, parser)
	require.True(t, ok)
	assert.Same(t, e1, e)
	_, ok = g.EdgeBetween(parser, kafka)
	assert.False(t, ok)

	e, ok = g.Edge(11)
	require.True(t, ok)
	assert.Same(t, e2, e)
}

func TestGraphRemoveNodeIsComplete(t *testing.T) {
	g, kafka, parser, hdfs, e1, _ := sampleGraph()
	g.SelectNode(parser)

	g.RemoveNode(parser)

	assert.False(t, g.Contains(parser))
	assert.Empty(t, g.EdgesOf(parser))
	assert.Empty(t, g.Edges(), "both incident edges removed")
	_, ok := g.Meta().Lookup(ParentProcessor, parser.ID)
	assert.False(t, ok)
	assert.False(t, g.Names().Contains("Parser"))
	assert.Nil(t, g.SelectedNode())

	assert.True(t, g.Contains(kafka))
	assert.True(t, g.Contains(hdfs))
	assert.False(t, g.RemoveEdge(e1))
}

func TestGraphRemoveEdgeClearsSelection(t *testing.T) {
	g, _, _, _, e1, e2 := sampleGraph()
	g.SelectEdge(e1)

	assert.True(t, g.RemoveEdge(e1))
	assert.Nil(t, g.SelectedEdge())
	assert.Equal(t, []*Edge{e2}, g.Edges())
}

func TestGraphSelectionExclusive(t *testing.T) {
	g, kafka, _, _, e1, _ := sampleGraph()

	g.SelectEdge(e1)
	g.SelectNode(kafka)
	assert.Same(t, kafka, g.SelectedNode())
	assert.Nil(t, g.SelectedEdge())

	g.SelectEdge(e1)
	assert.Nil(t, g.SelectedNode())
	assert.Same(t, e1, g.SelectedEdge())

	g.SelectNode(nil)
	assert.Same(t, e1, g.SelectedEdge(), "clearing the node keeps the edge")
}

func TestGraphSnapshotJSON(t *testing.T) {
	g, _, parser, _, _, _ := sampleGraph()
	g.SelectNode(parser)

	b, err := json.Marshal(g.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Len(t, decoded["nodes"], 3)
	assert.Len(t, decoded["edges"], 2)
	assert.Equal(t, float64(2), decoded["selectedNodeId"])

	nodes := decoded["nodes"].([]any)
	first := nodes[0].(map[string]any)
	assert.Equal(t, "SOURCE", first["parentType"])
	assert.Equal(t, "Kafka", first["uiname"])
}
