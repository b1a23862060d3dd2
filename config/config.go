package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

// EnvPrefix prefixes every environment override, e.g.
// TOPOLOGY_EDITOR_STORE_URL sets store.url
const EnvPrefix = "TOPOLOGY_EDITOR_"

// DefaultFile is read when present and no --config flag is given
const DefaultFile = "topology-editor.json"

// Store types
const (
	StoreHTTP   = "http"
	StoreMemory = "memory"
	StoreNATS   = "nats"
)

// Config is the editor's runtime configuration
type Config struct {
	Store   StoreConfig   `koanf:"store" json:"store"`
	NATS    NATSConfig    `koanf:"nats" json:"nats"`
	Editor  EditorConfig  `koanf:"editor" json:"editor"`
	API     APIConfig     `koanf:"api" json:"api"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics"`
	Log     LogConfig     `koanf:"log" json:"log"`
}

// StoreConfig selects the entity store and the topology version edited
type StoreConfig struct {
	Type       string        `koanf:"type" json:"type"`
	URL        string        `koanf:"url" json:"url"`
	Timeout    time.Duration `koanf:"timeout" json:"timeout"`
	TopologyID int64         `koanf:"topology_id" json:"topology_id"`
	VersionID  int64         `koanf:"version_id" json:"version_id"`
}

// NATSConfig configures the JetStream KV store
type NATSConfig struct {
	URL     string `koanf:"url" json:"url"`
	Bucket  string `koanf:"bucket" json:"bucket"`
	History int    `koanf:"history" json:"history"`
	Name    string `koanf:"name" json:"name"`

	User     string `koanf:"user" json:"user,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	Token    string `koanf:"token" json:"token,omitempty"`

	// MaxReconnects of -1 retries forever
	MaxReconnects int           `koanf:"max_reconnects" json:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait" json:"reconnect_wait"`
	Timeout       time.Duration `koanf:"timeout" json:"timeout"`
}

// EditorConfig tunes the consistency manager
type EditorConfig struct {
	Validator      string        `koanf:"validator" json:"validator"`
	Concurrency    int           `koanf:"concurrency" json:"concurrency"`
	QueueSize      int           `koanf:"queue_size" json:"queue_size"`
	CommandTimeout time.Duration `koanf:"command_timeout" json:"command_timeout"`
}

// APIConfig configures the editor HTTP API
type APIConfig struct {
	Addr            string        `koanf:"addr" json:"addr"`
	RateLimit       float64       `koanf:"rate_limit" json:"rate_limit"`
	Burst           int           `koanf:"burst" json:"burst"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled"`
	Addr    string `koanf:"addr" json:"addr"`
	Path    string `koanf:"path" json:"path"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// Defaults returns the configuration used when nothing overrides it
func Defaults() map[string]any {
	return map[string]any{
		"store": map[string]any{
			"type":        StoreMemory,
			"url":         "",
			"timeout":     "30s",
			"topology_id": 1,
			"version_id":  1,
		},
		"nats": map[string]any{
			"url":            "nats://localhost:4222",
			"bucket":         entitystore.DefaultBucket,
			"history":        5,
			"name":           "topology-editor",
			"max_reconnects": -1,
			"reconnect_wait": "2s",
			"timeout":        "5s",
		},
		"editor": map[string]any{
			"validator":       topology.ValidatorAllowAll,
			"concurrency":     8,
			"queue_size":      64,
			"command_timeout": "30s",
		},
		"api": map[string]any{
			"addr":             ":8080",
			"rate_limit":       50.0,
			"burst":            20,
			"shutdown_timeout": "10s",
		},
		"metrics": map[string]any{
			"enabled": true,
			"addr":    ":9090",
			"path":    "/metrics",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "json",
		},
	}
}

// Load layers the configuration: defaults, then the JSON file, then
// TOPOLOGY_EDITOR_* variables, then flags set on f. The file is the --config
// flag when given, otherwise DefaultFile if it exists.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "load defaults")
	}

	path, explicit := configPath(f)
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := k.Load(file.Provider(path), json.Parser()); err != nil {
				return nil, errors.WrapInvalid(
					fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
					"config", "Load", fmt.Sprintf("load %s", path))
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "load environment")
	}

	if f != nil {
		if err := k.Load(posflag.ProviderWithFlag(f, ".", k, flagKey(f)), nil); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"config", "Load", "unmarshal configuration")
	}
	return &cfg, nil
}

func configPath(f *pflag.FlagSet) (string, bool) {
	if f != nil {
		if fl := f.Lookup(FlagConfig); fl != nil && fl.Value.String() != "" {
			return fl.Value.String(), true
		}
	}
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p, true
	}
	return DefaultFile, false
}

// envKey maps TOPOLOGY_EDITOR_STORE_TOPOLOGY_ID to store.topology_id: the
// first underscore separates the section
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "config" {
		return ""
	}
	return strings.Replace(key, "_", ".", 1)
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf("%w: "+format, append([]any{errors.ErrInvalidConfig}, args...)...))
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreHTTP:
		if c.Store.URL == "" {
			add("store.url is required for the http store")
		} else if u, err := url.Parse(c.Store.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			add("store.url %q is not an http(s) url", c.Store.URL)
		}
	case StoreNATS:
		if c.NATS.URL == "" {
			add("nats.url is required for the nats store")
		}
		if c.NATS.History < 1 || c.NATS.History > 64 {
			add("nats.history must be between 1 and 64, got %d", c.NATS.History)
		}
		if (c.NATS.User == "") != (c.NATS.Password == "") {
			add("nats.user and nats.password must be set together")
		}
		if c.NATS.ReconnectWait < 0 {
			add("nats.reconnect_wait cannot be negative")
		}
		if c.NATS.Timeout <= 0 {
			add("nats.timeout must be positive")
		}
	default:
		add("unknown store.type %q", c.Store.Type)
	}
	if c.Store.TopologyID <= 0 {
		add("store.topology_id must be positive")
	}
	if c.Store.VersionID <= 0 {
		add("store.version_id must be positive")
	}
	if c.Store.Timeout <= 0 {
		add("store.timeout must be positive")
	}

	if _, err := topology.ParseValidator(c.Editor.Validator, nil); err != nil {
		add("unknown editor.validator %q", c.Editor.Validator)
	}
	if c.Editor.Concurrency < 1 {
		add("editor.concurrency must be at least 1")
	}
	if c.Editor.QueueSize < 1 {
		add("editor.queue_size must be at least 1")
	}

	if c.API.Addr == "" {
		add("api.addr is required")
	}
	if c.API.RateLimit > 0 && c.API.Burst < 1 {
		add("api.burst must be at least 1 when rate limiting")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr is required when metrics are enabled")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("metrics.path %q must start with /", c.Metrics.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("invalid log.level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		add("invalid log.format %q", c.Log.Format)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.WrapInvalid(errors.Join(problems...), "Config", "Validate", "validate configuration")
}

// Scope returns the topology version the editor works on
func (c *Config) Scope() entitystore.Scope {
	return entitystore.Scope{TopologyID: c.Store.TopologyID, VersionID: c.Store.VersionID}
}

// HTTPConfig returns the catalog client configuration
func (c *Config) HTTPConfig() entitystore.HTTPConfig {
	return entitystore.HTTPConfig{
		BaseURL: c.Store.URL,
		Scope:   c.Scope(),
		Timeout: c.Store.Timeout,
	}
}

// KVConfig returns the JetStream KV store configuration
func (c *Config) KVConfig() entitystore.KVConfig {
	return entitystore.KVConfig{
		Bucket:  c.NATS.Bucket,
		History: uint8(c.NATS.History),
		Scope:   c.Scope(),
	}
}

type mapProvider map[string]any

func (p mapProvider) Read() (map[string]any, error) {
	return p, nil
}

func (p mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
