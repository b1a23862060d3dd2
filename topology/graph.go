package topology

import (
	"slices"
	"sync"
)

// Graph is the in-memory state of the topology being edited: nodes, edges,
// editor metadata, names in use and the current selection.
//
// Graph is a read cache of confirmed remote state. Mutators are called by the
// editor only after the corresponding store operations have settled.
type Graph struct {
	mu    sync.RWMutex
	nodes []*Node
	edges []*Edge
	meta  *MetaInfo
	names *Names

	selectedNode *Node
	selectedEdge *Edge
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		meta:  NewMetaInfo(),
		names: NewNames(),
	}
}

// Load replaces the whole state, registering every node name
func (g *Graph) Load(nodes []*Node, edges []*Edge, meta *MetaInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if meta == nil {
		meta = NewMetaInfo()
	}
	g.nodes = slices.Clone(nodes)
	g.edges = slices.Clone(edges)
	g.meta = meta
	g.names = NewNames()
	for _, n := range nodes {
		g.names.Register(n.UIName)
	}
	g.selectedNode = nil
	g.selectedEdge = nil
}

// Names returns the session name set
func (g *Graph) Names() *Names {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.names
}

// Nodes returns the nodes in insertion order
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.nodes)
}

// Edges returns the edges in insertion order
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.edges)
}

// Node finds a node by server id
func (g *Graph) Node(id int64) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// NodeByName finds a node by display name
func (g *Graph) NodeByName(name string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.UIName == name {
			return n, true
		}
	}
	return nil, false
}

// Contains reports whether n is a node of the graph
func (g *Graph) Contains(n *Node) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.nodes, n)
}

// Edge finds an edge by server id
func (g *Graph) Edge(id int64) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, e := range g.edges {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// EdgesOf returns every edge touching n
func (g *Graph) EdgesOf(n *Node) []*Edge {
	return g.filterEdges(func(e *Edge) bool { return e.Touches(n) })
}

// Incoming returns edges whose target is n
func (g *Graph) Incoming(n *Node) []*Edge {
	return g.filterEdges(func(e *Edge) bool { return e.Target == n })
}

// Outgoing returns edges whose source is n
func (g *Graph) Outgoing(n *Node) []*Edge {
	return g.filterEdges(func(e *Edge) bool { return e.Source == n })
}

// EdgeBetween returns the edge directed source->target, if any
func (g *Graph) EdgeBetween(source, target *Node) (*Edge, bool) {
	edges := g.filterEdges(func(e *Edge) bool { return e.Source == source && e.Target == target })
	if len(edges) == 0 {
		return nil, false
	}
	return edges[0], true
}

func (g *Graph) filterEdges(keep func(*Edge) bool) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*Edge
	for _, e := range g.edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// AddNode appends a confirmed node
func (g *Graph) AddNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.nodes, n) {
		g.nodes = append(g.nodes, n)
	}
	g.names.Register(n.UIName)
}

// AddEdge appends a confirmed edge
func (g *Graph) AddEdge(e *Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !slices.Contains(g.edges, e) {
		g.edges = append(g.edges, e)
	}
}

// RemoveEdge drops e and clears it from the selection. It reports whether
// e was present.
func (g *Graph) RemoveEdge(e *Edge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeEdgeLocked(e)
}

func (g *Graph) removeEdgeLocked(e *Edge) bool {
	i := slices.Index(g.edges, e)
	if i < 0 {
		return false
	}
	g.edges = slices.Delete(g.edges, i, i+1)
	if g.selectedEdge == e {
		g.selectedEdge = nil
	}
	return true
}

// RemoveNode drops n together with every edge touching it, its metadata
// record, its custom name entry and its name, in one step.
func (g *Graph) RemoveNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges = slices.DeleteFunc(g.edges, func(e *Edge) bool {
		if e.Touches(n) {
			if g.selectedEdge == e {
				g.selectedEdge = nil
			}
			return true
		}
		return false
	})
	g.nodes = slices.DeleteFunc(g.nodes, func(x *Node) bool { return x == n })
	g.meta.Remove(n)
	g.names.Release(n.UIName)
	if g.selectedNode == n {
		g.selectedNode = nil
	}
}

// Meta returns a copy of the metadata
func (g *Graph) Meta() *MetaInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.meta.Clone()
}

// SetMeta replaces the metadata with a confirmed copy
func (g *Graph) SetMeta(m *MetaInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.meta = m.Clone()
}

// SetPosition moves n on the canvas
func (g *Graph) SetPosition(n *Node, x, y float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.X, n.Y = x, y
}

// SetParallelism records a confirmed parallelism change
func (g *Graph) SetParallelism(n *Node, count int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.Parallelism = count
}

// SetConfigured flags n as configured or not
func (g *Graph) SetConfigured(n *Node, configured bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n.Configured = configured
}

// SelectedNode returns the selected node, if any
func (g *Graph) SelectedNode() *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selectedNode
}

// SelectedEdge returns the selected edge, if any
func (g *Graph) SelectedEdge() *Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.selectedEdge
}

// SelectNode selects n and drops any edge selection. A nil n clears the
// node selection only.
func (g *Graph) SelectNode(n *Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selectedNode = n
	if n != nil {
		g.selectedEdge = nil
	}
}

// SelectEdge selects e and drops any node selection. A nil e clears the
// edge selection only.
func (g *Graph) SelectEdge(e *Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selectedEdge = e
	if e != nil {
		g.selectedNode = nil
	}
}

// EdgeView is the serializable form of an edge
type EdgeView struct {
	ID       int64          `json:"edgeId" yaml:"edgeId"`
	SourceID int64          `json:"sourceId" yaml:"sourceId"`
	TargetID int64          `json:"targetId" yaml:"targetId"`
	Grouping StreamGrouping `json:"streamGrouping" yaml:"streamGrouping"`
}

// Snapshot is a consistent, serializable copy of the graph
type Snapshot struct {
	Nodes          []Node     `json:"nodes" yaml:"nodes"`
	Edges          []EdgeView `json:"edges" yaml:"edges"`
	Meta           *MetaInfo  `json:"metaInfo" yaml:"metaInfo"`
	Names          []string   `json:"uinamesList" yaml:"uinamesList"`
	SelectedNodeID int64      `json:"selectedNodeId,omitempty" yaml:"selectedNodeId,omitempty"`
	SelectedEdgeID int64      `json:"selectedEdgeId,omitempty" yaml:"selectedEdgeId,omitempty"`
}

// Snapshot copies the current state
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		Nodes: make([]Node, 0, len(g.nodes)),
		Edges: make([]EdgeView, 0, len(g.edges)),
		Meta:  g.meta.Clone(),
		Names: g.names.List(),
	}
	for _, n := range g.nodes {
		s.Nodes = append(s.Nodes, *n)
	}
	for _, e := range g.edges {
		s.Edges = append(s.Edges, EdgeView{
			ID:       e.ID,
			SourceID: e.Source.ID,
			TargetID: e.Target.ID,
			Grouping: e.Grouping,
		})
	}
	if g.selectedNode != nil {
		s.SelectedNodeID = g.selectedNode.ID
	}
	if g.selectedEdge != nil {
		s.SelectedEdgeID = g.selectedEdge.ID
	}
	return s
}
