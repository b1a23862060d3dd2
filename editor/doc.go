// Package editor keeps a topology's in-memory graph, its persisted editor
// metadata and the remote entity store consistent while a user edits it.
//
// The Manager orchestrates each mutation as a fan-out of store requests and
// applies the confirmed result to topology.Graph once every request has
// settled. Partial failures are collected in a BatchResult and surfaced
// through a Notifier; nothing is retried or rolled back.
//
//	graph := topology.NewGraph()
//	m, err := editor.NewManager(client, graph, topologyID,
//	    editor.WithNotifier(notifier),
//	    editor.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := m.Load(ctx); err != nil {
//	    return err
//	}
//	res := m.CreateNodes(ctx, []editor.NodeSpec{
//	    {ParentType: topology.ParentSource, Subtype: "KAFKA", Name: "Kafka", BundleID: 1},
//	    {ParentType: topology.ParentProcessor, Subtype: "PARSER", Name: "Parser", BundleID: 7},
//	}, redraw)
//
// The Controller turns pointer releases into manager calls, form openings
// and selection changes.
package editor
