// Package main implements the topology editor service. It keeps a canvas
// graph consistent with the catalog entity store and serves it to a
// browser rendering layer.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ggolani/streamline/config"
	"github.com/ggolani/streamline/editor"
	"github.com/ggolani/streamline/editorapi"
	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/metric"
	"github.com/ggolani/streamline/topology"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "topology-editor"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cli, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cli.ShowVersion {
		fmt.Printf("%s %s (%s)\n", appName, Version, BuildTime)
		return nil
	}

	cfg, err := config.Load(cli.Flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cli.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	store, closeStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	client := entitystore.NewInstrumented(store, registry.CoreMetrics(), logger)

	if cli.Command == commandSnapshot {
		return runSnapshot(ctx, client, cfg.Store.TopologyID, cli.Output, os.Stdout, logger)
	}
	return serve(ctx, cfg, client, registry, logger)
}

func serve(ctx context.Context, cfg *config.Config, client entitystore.Client, registry *metric.MetricsRegistry, logger *slog.Logger) error {
	graph := topology.NewGraph()
	hub := editorapi.NewHub(graph, logger, registry.CoreMetrics())

	validator, err := topology.ParseValidator(cfg.Editor.Validator, graph)
	if err != nil {
		return err
	}

	manager, err := editor.NewManager(client, graph, cfg.Store.TopologyID,
		editor.WithValidator(validator),
		editor.WithNotifier(editor.MultiNotifier{editor.LogNotifier{Logger: logger}, hub}),
		editor.WithLogger(logger),
		editor.WithMetrics(registry),
		editor.WithConcurrency(cfg.Editor.Concurrency),
		editor.WithQueueSize(cfg.Editor.QueueSize),
		editor.WithLastChangeHook(hub.LastChange),
	)
	if err != nil {
		return err
	}
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("load topology %d: %w", cfg.Store.TopologyID, err)
	}

	shuffle, err := shuffleOptions(ctx, client)
	if err != nil {
		logger.Warn("Stream groupings unavailable", "error", err)
	}

	api, err := editorapi.NewServer(manager, hub,
		editorapi.WithLogger(logger),
		editorapi.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		editorapi.WithCommandTimeout(cfg.Editor.CommandTimeout),
		editorapi.WithShuffleOptions(shuffle),
	)
	if err != nil {
		return err
	}

	if err := manager.Start(ctx); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Editor API listening", "addr", cfg.API.Addr, "topology_id", cfg.Store.TopologyID)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve editor api: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("Metrics listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			return metricsServer.Start()
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", "timeout", cfg.API.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := hub.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown editor api: %w", err))
		}
		if err := manager.Stop(cfg.API.ShutdownTimeout); err != nil {
			errs = append(errs, err)
		}
		if metricsServer != nil {
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return stderrors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// shuffleOptions lists the stream groupings the catalog offers
func shuffleOptions(ctx context.Context, client entitystore.Client) ([]topology.ShuffleOption, error) {
	bundles, err := client.ListBundles(ctx, entitystore.BundleLink)
	if err != nil {
		return nil, err
	}
	subtypes := make([]string, 0, len(bundles))
	for _, b := range bundles {
		subtypes = append(subtypes, b.SubType)
	}
	return topology.ShuffleOptions(subtypes...), nil
}
