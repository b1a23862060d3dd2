package testutil

import (
	"context"
	"fmt"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/topology"
)

type builtNode struct {
	id       int64
	category topology.Category
	subtype  topology.Subtype
	parent   topology.ParentType
}

// TopologyBuilder seeds a Memory store with a topology. Methods chain; the
// first error is kept and returned by Build.
type TopologyBuilder struct {
	store *entitystore.Memory
	meta  *topology.MetaInfo
	nodes map[string]builtNode
	edges map[[2]string]int64
	err   error
}

// NewTopologyBuilder creates a builder seeding store. The fixture palette
// is registered right away.
func NewTopologyBuilder(store *entitystore.Memory) *TopologyBuilder {
	SeedBundles(store)
	return &TopologyBuilder{
		store: store,
		meta:  topology.NewMetaInfo(),
		nodes: map[string]builtNode{},
		edges: map[[2]string]int64{},
	}
}

// AddSource adds a source node
func (b *TopologyBuilder) AddSource(name, subtype string) *TopologyBuilder {
	return b.AddNode(topology.ParentSource, name, subtype, nil)
}

// AddProcessor adds a processor node
func (b *TopologyBuilder) AddProcessor(name, subtype string) *TopologyBuilder {
	return b.AddNode(topology.ParentProcessor, name, subtype, nil)
}

// AddSink adds a sink node
func (b *TopologyBuilder) AddSink(name, subtype string) *TopologyBuilder {
	return b.AddNode(topology.ParentSink, name, subtype, nil)
}

// AddNode adds a node entity built from the fixture bundle for subtype and
// places it on the canvas
func (b *TopologyBuilder) AddNode(parent topology.ParentType, name, subtype string, props map[string]any) *TopologyBuilder {
	if b.err != nil {
		return b
	}
	bundle := BundleFor(subtype)
	if bundle == nil {
		b.err = fmt.Errorf("no fixture bundle for subtype %q", subtype)
		return b
	}
	if props == nil {
		props = map[string]any{}
	}

	e := &entitystore.Entity{
		Name:     name,
		BundleID: bundle.ID,
		Config:   entitystore.Config{"properties": props},
	}
	if parent == topology.ParentProcessor {
		e.OutputStreamIDs = []int64{}
	}
	stored := b.store.Seed(parent.Category(), e)

	b.nodes[name] = builtNode{
		id:       stored.ID,
		category: parent.Category(),
		subtype:  topology.ParseSubtype(subtype),
		parent:   parent,
	}
	b.meta.Upsert(&topology.Node{
		ID:         stored.ID,
		ParentType: parent,
		X:          float64(100 * len(b.nodes)),
		Y:          100,
	})
	return b
}

// SetProperty sets config.properties[key] on a node
func (b *TopologyBuilder) SetProperty(name, key string, value any) *TopologyBuilder {
	return b.update(name, func(e *entitystore.Entity) {
		e.SetProperty(key, value)
	})
}

// AddStream gives a node an output stream
func (b *TopologyBuilder) AddStream(owner, streamName string) *TopologyBuilder {
	if b.err != nil {
		return b
	}
	s := b.store.Seed(topology.CategoryStreams, &entitystore.Entity{
		StreamID: streamName,
		Fields:   []entitystore.Object{{"name": "value", "type": "STRING"}},
	})
	return b.update(owner, func(e *entitystore.Entity) {
		e.OutputStreams = append(e.OutputStreams, entitystore.Object{"id": s.ID, "streamId": streamName})
	})
}

// AddRule adds a rule-like entity to owner, stored in the category that
// matches owner's subtype, with one action per target name
func (b *TopologyBuilder) AddRule(owner string, targets ...string) *TopologyBuilder {
	if b.err != nil {
		return b
	}
	n, ok := b.nodes[owner]
	if !ok {
		b.err = fmt.Errorf("unknown node %q", owner)
		return b
	}
	category := n.subtype.ActionCategory()
	if category == "" {
		b.err = fmt.Errorf("node %q cannot carry rules", owner)
		return b
	}

	actions := make([]entitystore.Object, 0, len(targets))
	for _, t := range targets {
		actions = append(actions, entitystore.Object{"name": t, "outputStreams": []any{owner + "_stream"}})
	}
	rule := b.store.Seed(category, &entitystore.Entity{
		Name:    fmt.Sprintf("%s-rule-%d", owner, b.store.Count(category)+1),
		Actions: actions,
	})

	return b.update(owner, func(e *entitystore.Entity) {
		ids := e.RuleIDs()
		rules := make([]any, 0, len(ids)+1)
		for _, id := range ids {
			rules = append(rules, id)
		}
		e.SetProperty("rules", append(rules, rule.ID))
	})
}

// Connect adds an edge between two nodes on the source's first stream
func (b *TopologyBuilder) Connect(from, to string) *TopologyBuilder {
	if b.err != nil {
		return b
	}
	src, ok := b.nodes[from]
	if !ok {
		b.err = fmt.Errorf("unknown node %q", from)
		return b
	}
	dst, ok := b.nodes[to]
	if !ok {
		b.err = fmt.Errorf("unknown node %q", to)
		return b
	}

	var streamID int64
	if e, ok := b.store.Entity(src.category, src.id); ok {
		if refs := e.OutputStreamRefs(); len(refs) > 0 {
			streamID = refs[0]
		}
	}
	edge := b.store.Seed(topology.CategoryEdges, &entitystore.Entity{
		FromID:          src.id,
		ToID:            dst.id,
		StreamGroupings: []topology.StreamGrouping{{StreamID: streamID, Grouping: "SHUFFLE"}},
	})
	b.edges[[2]string{from, to}] = edge.ID
	return b
}

// FailedTuples marks a node's metadata record as being on the failed
// tuples stream
func (b *TopologyBuilder) FailedTuples(name string) *TopologyBuilder {
	if b.err != nil {
		return b
	}
	n := b.nodes[name]
	rec, _ := b.meta.Lookup(n.parent, n.id)
	b.meta.Upsert(&topology.Node{
		ID: n.id, ParentType: n.parent, X: rec.X, Y: rec.Y, StreamID: topology.FailedTuplesStream,
	})
	return b
}

func (b *TopologyBuilder) update(name string, fn func(*entitystore.Entity)) *TopologyBuilder {
	if b.err != nil {
		return b
	}
	n, ok := b.nodes[name]
	if !ok {
		b.err = fmt.Errorf("unknown node %q", name)
		return b
	}
	e, ok := b.store.Entity(n.category, n.id)
	if !ok {
		b.err = fmt.Errorf("node %q vanished from store", name)
		return b
	}
	fn(e)
	b.store.Seed(n.category, e)
	return b
}

// Build writes the metadata and clears the call log
func (b *TopologyBuilder) Build(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	env, err := entitystore.NewMetaInfoEnvelope(b.store.Scope().TopologyID, b.meta)
	if err != nil {
		return err
	}
	if _, err := b.store.PutMetaInfo(ctx, env); err != nil {
		return err
	}
	b.store.ResetCalls()
	return nil
}

// ID returns the id of a named node, or 0
func (b *TopologyBuilder) ID(name string) int64 {
	return b.nodes[name].id
}

// EdgeID returns the id of the edge from -> to, or 0
func (b *TopologyBuilder) EdgeID(from, to string) int64 {
	return b.edges[[2]string{from, to}]
}

// Meta returns a copy of the metadata the builder writes
func (b *TopologyBuilder) Meta() *topology.MetaInfo {
	return b.meta.Clone()
}
