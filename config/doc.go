// Package config provides configuration for the topology editor.
//
// Configuration is layered with koanf. Later layers win:
//
//  1. Defaults
//  2. A JSON file: --config, TOPOLOGY_EDITOR_CONFIG, or ./topology-editor.json when present
//  3. Environment variables prefixed TOPOLOGY_EDITOR_
//  4. Command-line flags that were set explicitly
//
// Environment variables name a section and a key separated by the first
// underscore:
//
//	TOPOLOGY_EDITOR_STORE_TYPE=nats
//	TOPOLOGY_EDITOR_STORE_TOPOLOGY_ID=42
//	TOPOLOGY_EDITOR_EDITOR_VALIDATOR=acyclic
//
// # Basic Usage
//
//	fs := pflag.NewFlagSet("topology-editor", pflag.ExitOnError)
//	config.RegisterFlags(fs)
//	_ = fs.Parse(os.Args[1:])
//
//	cfg, err := config.Load(fs)
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// A file mirrors the struct layout:
//
//	{
//	  "store": {"type": "http", "url": "http://catalog:8080", "topology_id": 42, "version_id": 3},
//	  "editor": {"validator": "acyclic", "concurrency": 4},
//	  "api": {"addr": ":8081", "rate_limit": 0}
//	}
//
// Durations accept Go duration strings ("30s", "2m").
package config
