// Package testutil provides fixtures for editor tests.
//
// # Component bundles
//
// Bundles returns a small palette covering every subtype whose handling
// differs (rule, window, branch, join, custom, ...), plus the stream
// grouping LINK bundles. SeedBundles registers them on a Memory store.
//
// # Topology builder
//
// TopologyBuilder seeds a Memory store with a topology as the catalog
// would hold it: node entities, their output streams, the rule-like
// entities carrying actions, edges and the editor metadata.
//
//	store := entitystore.NewMemory(entitystore.Scope{TopologyID: 1, VersionID: 1})
//	b := testutil.NewTopologyBuilder(store).
//	    AddSource("Kafka", "KAFKA").
//	    AddProcessor("Rule", "RULE").
//	    AddProcessor("Parser", "PARSER").
//	    AddRule("Rule", "Parser").
//	    Connect("Kafka", "Rule").
//	    Connect("Rule", "Parser")
//	require.NoError(t, b.Build(ctx))
//	parserID := b.ID("Parser")
//
// Build writes the metadata and then clears the store's call log, so
// assertions only see the calls made by the code under test.
//
// # Collaborators
//
// RefreshCounter counts redraw requests.
package testutil
