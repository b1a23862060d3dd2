package topology

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ggolani/streamline/errors"
)

// Validator decides whether an edge may be created between two nodes.
// It is consulted before any state change or store call.
type Validator interface {
	CanConnect(source, target *Node) bool
}

// ValidatorFunc adapts a plain function to Validator
type ValidatorFunc func(source, target *Node) bool

// CanConnect calls f
func (f ValidatorFunc) CanConnect(source, target *Node) bool {
	return f(source, target)
}

// AllowAll accepts every pair. It is the production default.
type AllowAll struct{}

// CanConnect always returns true
func (AllowAll) CanConnect(_, _ *Node) bool {
	return true
}

// AdjacencyRules is the older, stricter rule set: only a split may feed a
// stage, and a stage may only feed a join. It must be selected explicitly.
type AdjacencyRules struct{}

// CanConnect applies the split/stage/join adjacency constraints
func (AdjacencyRules) CanConnect(source, target *Node) bool {
	if source == nil || target == nil {
		return false
	}
	if source.Subtype != SubtypeSplit && target.Subtype == SubtypeStage {
		return false
	}
	if source.Subtype == SubtypeStage && target.Subtype != SubtypeJoin {
		return false
	}
	return true
}

// Acyclic refuses edges that would close a cycle in the graph. An existing
// reverse edge is ignored since creating the edge replaces it.
type Acyclic struct {
	Graph *Graph
}

// CanConnect reports whether source->target keeps the graph acyclic
func (a Acyclic) CanConnect(source, target *Node) bool {
	if source == nil || target == nil || source == target {
		return false
	}
	if a.Graph == nil {
		return true
	}

	g := simple.NewDirectedGraph()
	ensure := func(id int64) {
		if g.Node(id) == nil {
			g.AddNode(simple.Node(id))
		}
	}
	ensure(source.ID)
	ensure(target.ID)
	for _, e := range a.Graph.Edges() {
		if e.Source == target && e.Target == source {
			continue
		}
		if e.Source.ID == e.Target.ID {
			continue
		}
		ensure(e.Source.ID)
		ensure(e.Target.ID)
		g.SetEdge(g.NewEdge(g.Node(e.Source.ID), g.Node(e.Target.ID)))
	}
	return !topo.PathExistsIn(g, g.Node(target.ID), g.Node(source.ID))
}

// Validator names accepted by ParseValidator
const (
	ValidatorAllowAll  = "allow_all"
	ValidatorAdjacency = "adjacency"
	ValidatorAcyclic   = "acyclic"
)

// ParseValidator builds the validator selected by name. Acyclic checks
// against g.
func ParseValidator(name string, g *Graph) (Validator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ValidatorAllowAll:
		return AllowAll{}, nil
	case ValidatorAdjacency:
		return AdjacencyRules{}, nil
	case ValidatorAcyclic:
		return Acyclic{Graph: g}, nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: validator %q", errors.ErrInvalidConfig, name),
			"topology", "ParseValidator", "select validator")
	}
}
