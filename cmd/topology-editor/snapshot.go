package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/ggolani/streamline/editor"
	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/topology"
)

// runSnapshot loads the stored topology and writes its graph snapshot
func runSnapshot(ctx context.Context, client entitystore.Client, topologyID int64, format string, w io.Writer, logger *slog.Logger) error {
	graph := topology.NewGraph()
	manager, err := editor.NewManager(client, graph, topologyID,
		editor.WithLogger(logger),
		editor.WithNotifier(editor.LogNotifier{Logger: logger}),
	)
	if err != nil {
		return err
	}
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("load topology %d: %w", topologyID, err)
	}
	return writeSnapshot(w, graph.Snapshot(), format)
}

// writeSnapshot encodes snap as indented JSON or YAML
func writeSnapshot(w io.Writer, snap topology.Snapshot, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}
