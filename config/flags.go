package config

import (
	"time"

	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"

	"github.com/ggolani/streamline/entitystore"
)

// FlagConfig names the flag selecting the JSON configuration file
const FlagConfig = "config"

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"store":         "store.type",
	"store-url":     "store.url",
	"store-timeout": "store.timeout",
	"topology-id":   "store.topology_id",
	"version-id":    "store.version_id",
	"nats-url":      "nats.url",
	"nats-bucket":   "nats.bucket",
	"validator":     "editor.validator",
	"concurrency":   "editor.concurrency",
	"queue-size":    "editor.queue_size",
	"addr":          "api.addr",
	"rate-limit":    "api.rate_limit",
	"metrics":       "metrics.enabled",
	"metrics-addr":  "metrics.addr",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// RegisterFlags defines the configuration flags on fs. Defaults shown in
// help match Defaults; only flags set explicitly override other layers.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(FlagConfig, "c", "", "Path to JSON configuration file (env: "+EnvPrefix+"CONFIG)")
	fs.String("store", StoreMemory, "Entity store: http, memory, nats")
	fs.String("store-url", "", "Catalog base URL for the http store")
	fs.Duration("store-timeout", 30*time.Second, "Catalog request timeout")
	fs.Int64("topology-id", 1, "Topology id to edit")
	fs.Int64("version-id", 1, "Topology version id to edit")
	fs.String("nats-url", "nats://localhost:4222", "NATS server URL for the nats store")
	fs.String("nats-bucket", entitystore.DefaultBucket, "JetStream KV bucket for the nats store")
	fs.String("validator", "allow_all", "Edge validator: allow_all, adjacency, acyclic")
	fs.Int("concurrency", 8, "Maximum concurrent store requests per operation")
	fs.Int("queue-size", 64, "Command queue capacity")
	fs.String("addr", ":8080", "Editor API listen address")
	fs.Float64("rate-limit", 50, "API requests per second, 0 disables")
	fs.Bool("metrics", true, "Serve Prometheus metrics")
	fs.String("metrics-addr", ":9090", "Metrics listen address")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "json", "Log format: json, text")
}

func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}
