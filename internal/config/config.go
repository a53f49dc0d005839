// Package config handles RELIC runtime configuration.
//
// Configuration lives in relic.runtime.toml, NOT in the rule files.
// Rule files never see secrets; connection strings and credentials use
// the "env:" prefix to read from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the complete runtime configuration.
// Loaded from relic.runtime.toml in the project directory.
type Config struct {
	// Graph store configuration
	Graph GraphConfig `toml:"graph"`

	// Engine configuration for cascade dispatch
	Engine EngineConfig `toml:"engine"`

	// NATS configuration for the event bridge
	NATS NATSConfig `toml:"nats"`

	// Rules configuration for DSL file loading
	Rules RulesConfig `toml:"rules"`

	// Metrics configuration for the Prometheus endpoint
	Metrics MetricsConfig `toml:"metrics"`

	// Environments holds environment-specific overrides
	Environments map[string]EnvironmentOverride `toml:"environments"`
}

// GraphConfig selects and configures the graph store adapter.
type GraphConfig struct {
	// Adapter: "memory", "postgres", "embedded"
	Adapter string `toml:"adapter"`

	// URL is the Postgres connection string (supports "env:" prefix)
	URL string `toml:"url"`

	// Embedded server settings
	Embedded EmbeddedConfig `toml:"embedded"`
}

// EmbeddedConfig configures the embedded Postgres server.
type EmbeddedConfig struct {
	Port    int    `toml:"port"`
	DataDir string `toml:"data_dir"`

	// Ephemeral discards the data directory on shutdown
	Ephemeral bool `toml:"ephemeral"`
}

// EngineConfig bounds cascade dispatch.
type EngineConfig struct {
	// MaxCascadeDepth caps chained rule firings per top-level event
	MaxCascadeDepth int `toml:"max_cascade_depth"`
}

// NATSConfig configures the inbound/outbound event bridge. An empty URL
// disables the bridge.
type NATSConfig struct {
	// URL of the NATS server (supports "env:" prefix)
	URL string `toml:"url"`

	// InboundSubject carries external change events into the engine
	InboundSubject string `toml:"inbound_subject"`

	// OutboundPrefix prefixes published synthetic event subjects
	OutboundPrefix string `toml:"outbound_prefix"`
}

// RulesConfig lists the DSL files to load and watch.
type RulesConfig struct {
	Paths []string `toml:"paths"`

	// Watch hot-reloads rule files on change
	Watch bool `toml:"watch"`
}

// MetricsConfig configures the HTTP metrics endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// EnvironmentOverride holds environment-specific configuration overrides.
type EnvironmentOverride struct {
	Graph   GraphConfig   `toml:"graph"`
	Engine  EngineConfig  `toml:"engine"`
	NATS    NATSConfig    `toml:"nats"`
	Metrics MetricsConfig `toml:"metrics"`
}

// Load loads configuration from relic.runtime.toml in the given directory.
// If RELIC_ENV is set, it applies environment-specific overrides.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, "relic.runtime.toml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return defaultConfig(), nil
	}

	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse relic.runtime.toml: %w", err)
	}

	config.applyDefaults()

	env := os.Getenv("RELIC_ENV")
	if env == "" {
		env = "development"
	}
	if override, ok := config.Environments[env]; ok {
		config.applyOverride(&override)
	}

	return &config, nil
}

// LoadFromEnv creates a configuration from environment variables only.
// Used when relic.runtime.toml is not present.
func LoadFromEnv() *Config {
	config := defaultConfig()

	if url := os.Getenv("DATABASE_URL"); url != "" {
		config.Graph.Adapter = "postgres"
		config.Graph.URL = url
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		config.NATS.URL = url
	}

	return config
}

// defaultConfig returns the default configuration: an in-memory graph
// store with no external services, for zero-config development.
func defaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			Adapter: "memory",
			Embedded: EmbeddedConfig{
				Port:    5433,
				DataDir: ".relic-runtime/data",
			},
		},
		Engine: EngineConfig{
			MaxCascadeDepth: 10,
		},
		NATS: NATSConfig{
			InboundSubject: "relic.events.inbound",
			OutboundPrefix: "relic.events.outbound",
		},
		Metrics: MetricsConfig{},
	}
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := defaultConfig()

	if c.Graph.Adapter == "" {
		c.Graph.Adapter = defaults.Graph.Adapter
	}
	if c.Graph.Embedded.Port == 0 {
		c.Graph.Embedded.Port = defaults.Graph.Embedded.Port
	}
	if c.Graph.Embedded.DataDir == "" {
		c.Graph.Embedded.DataDir = defaults.Graph.Embedded.DataDir
	}

	if c.Engine.MaxCascadeDepth == 0 {
		c.Engine.MaxCascadeDepth = defaults.Engine.MaxCascadeDepth
	}

	if c.NATS.InboundSubject == "" {
		c.NATS.InboundSubject = defaults.NATS.InboundSubject
	}
	if c.NATS.OutboundPrefix == "" {
		c.NATS.OutboundPrefix = defaults.NATS.OutboundPrefix
	}
}

// applyOverride applies environment-specific overrides.
func (c *Config) applyOverride(override *EnvironmentOverride) {
	if override.Graph.Adapter != "" {
		c.Graph.Adapter = override.Graph.Adapter
	}
	if override.Graph.URL != "" {
		c.Graph.URL = override.Graph.URL
	}
	if override.Graph.Embedded.Port != 0 {
		c.Graph.Embedded.Port = override.Graph.Embedded.Port
	}
	if override.Graph.Embedded.DataDir != "" {
		c.Graph.Embedded.DataDir = override.Graph.Embedded.DataDir
	}
	if override.Graph.Embedded.Ephemeral {
		c.Graph.Embedded.Ephemeral = true
	}

	if override.Engine.MaxCascadeDepth != 0 {
		c.Engine.MaxCascadeDepth = override.Engine.MaxCascadeDepth
	}

	if override.NATS.URL != "" {
		c.NATS.URL = override.NATS.URL
	}
	if override.NATS.InboundSubject != "" {
		c.NATS.InboundSubject = override.NATS.InboundSubject
	}
	if override.NATS.OutboundPrefix != "" {
		c.NATS.OutboundPrefix = override.NATS.OutboundPrefix
	}

	if override.Metrics.Listen != "" {
		c.Metrics.Listen = override.Metrics.Listen
	}
}

// ResolveSecrets resolves all "env:" prefixed values to their actual
// values. Call this after Load() to get the final configuration.
func (c *Config) ResolveSecrets() {
	c.Graph.URL = resolveEnvValue(c.Graph.URL)
	c.NATS.URL = resolveEnvValue(c.NATS.URL)
}

// resolveEnvValue resolves "env:VAR_NAME" to the environment variable value.
func resolveEnvValue(value string) string {
	if len(value) > 4 && value[:4] == "env:" {
		return os.Getenv(value[4:])
	}
	return value
}
