package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
)

// chdir moves into dir for the duration of the test so DefaultFile lookups
// do not see the working tree
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "editor.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.Equal(t, 30*time.Second, cfg.Store.Timeout)
	assert.Equal(t, int64(1), cfg.Store.TopologyID)
	assert.Equal(t, entitystore.DefaultBucket, cfg.NATS.Bucket)
	assert.Equal(t, "allow_all", cfg.Editor.Validator)
	assert.Equal(t, 8, cfg.Editor.Concurrency)
	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.InDelta(t, 50.0, cfg.API.RateLimit, 0.001)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NilFlagSet(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Editor.QueueSize)
}

func TestLoad_Layers(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeFile(t, `{
		"store": {"type": "http", "url": "http://catalog:8080", "topology_id": 42, "timeout": "5s"},
		"editor": {"validator": "acyclic", "concurrency": 4},
		"log": {"level": "debug"}
	}`)
	t.Setenv("TOPOLOGY_EDITOR_STORE_VERSION_ID", "3")
	t.Setenv("TOPOLOGY_EDITOR_EDITOR_CONCURRENCY", "2")
	t.Setenv("TOPOLOGY_EDITOR_LOG_LEVEL", "warn")

	cfg, err := Load(newFlags(t, "--config", path, "--log-level", "error", "--addr", ":9000"))
	require.NoError(t, err)

	// file
	assert.Equal(t, StoreHTTP, cfg.Store.Type)
	assert.Equal(t, "http://catalog:8080", cfg.Store.URL)
	assert.Equal(t, int64(42), cfg.Store.TopologyID)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "acyclic", cfg.Editor.Validator)
	// env over file
	assert.Equal(t, int64(3), cfg.Store.VersionID)
	assert.Equal(t, 2, cfg.Editor.Concurrency)
	// flag over env
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.API.Addr)
	// unset flags keep lower layers
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, entitystore.Scope{TopologyID: 42, VersionID: 3}, cfg.Scope())
	assert.Equal(t, entitystore.HTTPConfig{
		BaseURL: "http://catalog:8080",
		Scope:   entitystore.Scope{TopologyID: 42, VersionID: 3},
		Timeout: 5 * time.Second,
	}, cfg.HTTPConfig())
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeFile(t, `{"store": {"type": "nats"}, "nats": {"bucket": "editor", "history": 10}}`)
	t.Setenv("TOPOLOGY_EDITOR_CONFIG", path)

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, StoreNATS, cfg.Store.Type)

	kv := cfg.KVConfig()
	assert.Equal(t, "editor", kv.Bucket)
	assert.Equal(t, uint8(10), kv.History)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
}

func TestLoad_DefaultFileWhenPresent(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte(`{"api": {"addr": ":7000"}}`), 0o600))

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.API.Addr)
}

func TestLoad_FileErrors(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "missing explicit file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") },
		},
		{
			name: "malformed json",
			path: func(t *testing.T) string { return writeFile(t, `{"store": `) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newFlags(t, "--config", tt.path(t)))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdir(t, t.TempDir())
	cfg, err := Load(nil)
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:   "http store",
			mutate: func(c *Config) { c.Store.Type = StoreHTTP; c.Store.URL = "https://catalog" },
		},
		{
			name:    "http store without url",
			mutate:  func(c *Config) { c.Store.Type = StoreHTTP },
			wantErr: "store.url is required",
		},
		{
			name:    "http store with bad scheme",
			mutate:  func(c *Config) { c.Store.Type = StoreHTTP; c.Store.URL = "ftp://catalog" },
			wantErr: "not an http(s) url",
		},
		{
			name:    "nats history out of range",
			mutate:  func(c *Config) { c.Store.Type = StoreNATS; c.NATS.History = 0 },
			wantErr: "nats.history",
		},
		{
			name:    "nats user without password",
			mutate:  func(c *Config) { c.Store.Type = StoreNATS; c.NATS.User = "editor" },
			wantErr: "nats.user and nats.password",
		},
		{
			name:    "nats timeout",
			mutate:  func(c *Config) { c.Store.Type = StoreNATS; c.NATS.Timeout = 0 },
			wantErr: "nats.timeout",
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Store.Type = "sql" },
			wantErr: `unknown store.type "sql"`,
		},
		{
			name:    "topology id",
			mutate:  func(c *Config) { c.Store.TopologyID = 0 },
			wantErr: "store.topology_id",
		},
		{
			name:    "validator",
			mutate:  func(c *Config) { c.Editor.Validator = "strict" },
			wantErr: `unknown editor.validator "strict"`,
		},
		{
			name:    "queue size",
			mutate:  func(c *Config) { c.Editor.QueueSize = 0 },
			wantErr: "editor.queue_size",
		},
		{
			name:    "burst",
			mutate:  func(c *Config) { c.API.Burst = 0 },
			wantErr: "api.burst",
		},
		{
			name:   "rate limit disabled ignores burst",
			mutate: func(c *Config) { c.API.RateLimit = 0; c.API.Burst = 0 },
		},
		{
			name:    "metrics path",
			mutate:  func(c *Config) { c.Metrics.Path = "metrics" },
			wantErr: "metrics.path",
		},
		{
			name:   "metrics disabled",
			mutate: func(c *Config) { c.Metrics.Enabled = false; c.Metrics.Addr = "" },
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `invalid log.level "trace"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsInvalid(err))
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig(t)
	cfg.Editor.Concurrency = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "editor.concurrency")
	assert.Contains(t, err.Error(), `invalid log.format "xml"`)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "store.topology_id", envKey("TOPOLOGY_EDITOR_STORE_TOPOLOGY_ID"))
	assert.Equal(t, "api.addr", envKey("TOPOLOGY_EDITOR_API_ADDR"))
	assert.Equal(t, "", envKey("TOPOLOGY_EDITOR_CONFIG"))
}
