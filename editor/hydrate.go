package editor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

var parentTypes = []topology.ParentType{
	topology.ParentSource,
	topology.ParentProcessor,
	topology.ParentSink,
}

// Load replaces Graph State with the topology held by the store. Unlike
// user operations a load is all or nothing: the first failed request
// cancels the others and Graph State is left as it was.
func (m *Manager) Load(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var (
		mu       sync.Mutex
		entities = map[topology.ParentType][]*entitystore.Entity{}
		bundles  = map[topology.ParentType][]*entitystore.Bundle{}
		edges    []*entitystore.Entity
		env      *entitystore.MetaInfoEnvelope
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parentTypes {
		g.Go(func() error {
			list, err := m.client.ListNodes(gctx, p.Category())
			if err != nil {
				return errors.WrapClass(err, "Manager", "Load", "list "+string(p.Category()))
			}
			mu.Lock()
			entities[p] = list
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			list, err := m.client.ListBundles(gctx, p.String())
			if err != nil {
				return errors.WrapClass(err, "Manager", "Load", "list "+p.String()+" bundles")
			}
			mu.Lock()
			bundles[p] = list
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		list, err := m.client.ListNodes(gctx, topology.CategoryEdges)
		if err != nil {
			return errors.WrapClass(err, "Manager", "Load", "list edges")
		}
		edges = list
		return nil
	})
	g.Go(func() error {
		e, err := m.client.GetMetaInfo(gctx)
		if err != nil {
			return errors.WrapClass(err, "Manager", "Load", "get metadata")
		}
		env = e
		return nil
	})
	if err := g.Wait(); err != nil {
		m.notifyError(err)
		return err
	}

	meta, err := env.MetaInfo()
	if err != nil {
		return errors.WrapInvalid(err, "Manager", "Load", "decode metadata")
	}

	nodes := BuildNodes(entities, bundles, meta, m.logger)
	m.graph.Load(nodes, BuildEdges(edges, nodes, m.logger), meta)
	m.setLastChange(env.Timestamp)
	m.metrics.recordRefresh(len(m.graph.Nodes()), len(m.graph.Edges()))

	m.logger.Info("topology loaded", "nodes", len(nodes), "edges", len(m.graph.Edges()))
	return nil
}

// BuildNodes turns stored node entities into canvas nodes, sources first,
// then processors, then sinks. A node whose bundle is unknown becomes a
// generic node; a node without a metadata record is placed at the origin.
func BuildNodes(
	entities map[topology.ParentType][]*entitystore.Entity,
	bundles map[topology.ParentType][]*entitystore.Bundle,
	meta *topology.MetaInfo,
	logger *slog.Logger,
) []*topology.Node {
	if logger == nil {
		logger = slog.Default()
	}
	if meta == nil {
		meta = topology.NewMetaInfo()
	}

	var nodes []*topology.Node
	for _, p := range parentTypes {
		byID := make(map[int64]*entitystore.Bundle, len(bundles[p]))
		for _, b := range bundles[p] {
			byID[b.ID] = b
		}

		for _, e := range entities[p] {
			var n *topology.Node
			if bundle, ok := byID[e.BundleID]; ok {
				n = topology.NewNode(p, bundle.SubType, e.Name, bundle.ID)
				n.Label = bundle.Label()
			} else {
				// kept so its name stays taken and its edges still resolve
				logger.Error("component bundle is missing", "node", e.Name, "bundle_id", e.BundleID)
				n = topology.NewNode(p, topology.SubtypeGeneric.String(), e.Name, e.BundleID)
			}
			n.ID = e.ID
			props := e.Properties()
			n.Configured = len(props) > 0
			if par := entitystore.ToInt64(props["parallelism"]); par > 0 {
				n.Parallelism = int(par)
			}

			if rec, ok := meta.Lookup(p, e.ID); ok {
				n.X, n.Y = rec.X, rec.Y
				n.StreamID = rec.StreamID
			} else {
				logger.Warn("failed to get metadata", "node", e.Name, "id", e.ID)
			}
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// BuildEdges resolves edge entities against nodes. Edges with a missing
// endpoint are logged and dropped.
func BuildEdges(entities []*entitystore.Entity, nodes []*topology.Node, logger *slog.Logger) []*topology.Edge {
	if logger == nil {
		logger = slog.Default()
	}

	byID := make(map[int64]*topology.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	edges := make([]*topology.Edge, 0, len(entities))
	for _, e := range entities {
		from, ok := byID[e.FromID]
		if !ok {
			logger.Error("from node is missing", "edge_id", e.ID, "from_id", e.FromID)
			continue
		}
		to, ok := byID[e.ToID]
		if !ok {
			logger.Error("to node is missing", "edge_id", e.ID, "to_id", e.ToID)
			continue
		}
		edge := &topology.Edge{ID: e.ID, Source: from, Target: to}
		if len(e.StreamGroupings) > 0 {
			edge.Grouping = e.StreamGroupings[0]
		}
		edges = append(edges, edge)
	}
	return edges
}
