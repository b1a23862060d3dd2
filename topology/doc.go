// Package topology holds the in-memory model of a stream topology while it
// is being edited: nodes, edges, the session name set and the persisted
// editor metadata.
//
// Graph is the single source of truth for the canvas. It is safe for
// concurrent use and is only mutated once the entity store has confirmed a
// change; the editor package owns that sequencing.
//
//	g := topology.NewGraph()
//	g.Load(nodes, edges, meta)
//
//	name := g.Names().Allocate("Kafka") // "Kafka", then "Kafka-1", ...
//	snap := g.Snapshot()
//
// # Metadata
//
// MetaInfo is the JSON document stored next to a topology. It records each
// node's canvas position and stream id per parent type, plus the custom
// names given to CUSTOM processors. ParseMetaInfo and Encode convert it to
// and from its stored string form.
//
// # Edge validation
//
// A Validator decides whether two nodes may be connected and runs before
// any remote call. ParseValidator selects one by name:
//
//	allow_all   every pair is accepted (the default)
//	adjacency   the older split/stage/join rules
//	acyclic     refuses edges that would close a cycle
//
// # Form dispatch
//
// Dispatch picks the configuration form for a node from its parent type
// and subtype, and splits its neighbours into upstream and downstream
// lists.
package topology
