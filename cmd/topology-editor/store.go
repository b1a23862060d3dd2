package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ggolani/streamline/config"
	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/natsclient"
	"github.com/ggolani/streamline/testutil"
)

// setupStore builds the entity store selected by cfg. The returned func
// releases its connections.
func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (entitystore.Client, func(), error) {
	switch cfg.Store.Type {
	case config.StoreHTTP:
		c, err := entitystore.NewHTTPClient(cfg.HTTPConfig(), logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using catalog store", "url", cfg.Store.URL)
		return c, func() {}, nil

	case config.StoreNATS:
		nc, err := natsclient.NewClient(cfg.NATS.URL, natsOptions(cfg.NATS, logger)...)
		if err != nil {
			return nil, nil, err
		}
		if err := nc.Connect(ctx); err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = nc.Close(context.Background()) }
		kv, err := entitystore.NewKVStore(ctx, nc, cfg.KVConfig(), logger)
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		logger.Info("Using JetStream KV store", "url", cfg.NATS.URL, "bucket", cfg.NATS.Bucket)
		return kv, closeFn, nil

	case config.StoreMemory:
		m := entitystore.NewMemory(cfg.Scope())
		testutil.SeedBundles(m)
		logger.Warn("Using in-memory store, changes are lost on exit")
		return m, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}

func natsOptions(cfg config.NATSConfig, logger *slog.Logger) []natsclient.ClientOption {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(cfg.Name),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithTimeout(cfg.Timeout),
	}
	if cfg.User != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.User, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	return opts
}
