package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ggolani/streamline/config"
)

const (
	commandServe    = "serve"
	commandSnapshot = "snapshot"
)

// CLIConfig holds command-line options that are not part of config.Config
type CLIConfig struct {
	Command     string
	Output      string
	ShowVersion bool
	Validate    bool

	// Flags carries the configuration flags for config.Load
	Flags *pflag.FlagSet
}

func parseFlags(args []string) (*CLIConfig, error) {
	cli := &CLIConfig{Command: commandServe}
	if len(args) > 0 && (args[0] == commandServe || args[0] == commandSnapshot) {
		cli.Command = args[0]
		args = args[1:]
	}

	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	config.RegisterFlags(fs)
	fs.StringVarP(&cli.Output, "output", "o", "yaml", "Snapshot output format: yaml, json")
	fs.BoolVarP(&cli.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVar(&cli.Validate, "validate", false, "Validate configuration and exit")
	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument %q", rest[0])
	}
	if cli.Output != "yaml" && cli.Output != "json" {
		return nil, fmt.Errorf("invalid output format: %s", cli.Output)
	}
	cli.Flags = fs
	return cli, nil
}

func printDetailedHelp(fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Streamline topology editor

Usage:
  %s [serve] [options]
  %s snapshot [-o yaml|json] [options]

Options:
`, appName, appName, appName)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Edit topology 42 against the catalog
  %s --store=http --store-url=http://catalog:8080 --topology-id=42

  # Keep entities in NATS JetStream KV
  %s --store=nats --nats-url=nats://localhost:4222

  # Print the stored graph
  %s snapshot -o json --store=http --store-url=http://catalog:8080

Environment variables override the configuration file, e.g.
  export %sSTORE_TYPE=http

Version: %s
Build: %s
`, appName, appName, appName, config.EnvPrefix, Version, BuildTime)
}
