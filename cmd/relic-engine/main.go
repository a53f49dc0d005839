// Package main provides the RELIC engine server.
//
// The engine loads DSL rule files, connects to the configured graph
// store, and reacts to change events from NATS. Configuration comes from
// relic.runtime.toml in the project directory; RELIC_ENV selects
// environment-specific overrides.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/relic-lang/relic/internal/server"
)

func main() {
	config := &server.Config{}
	var rules string

	flag.StringVar(&config.ProjectDir, "project", getEnv("RELIC_PROJECT", "."), "project directory containing relic.runtime.toml")
	flag.StringVar(&rules, "rules", getEnv("RELIC_RULES", ""), "comma-separated DSL files (overrides relic.runtime.toml)")
	flag.StringVar(&config.DatabaseURL, "database", getEnv("DATABASE_URL", ""), "PostgreSQL connection URL (overrides relic.runtime.toml)")
	flag.StringVar(&config.NATSURL, "nats", getEnv("NATS_URL", ""), "NATS server URL (overrides relic.runtime.toml)")
	flag.StringVar(&config.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	if rules != "" {
		for _, path := range strings.Split(rules, ",") {
			if path = strings.TrimSpace(path); path != "" {
				config.RulePaths = append(config.RulePaths, path)
			}
		}
	}

	srv, err := server.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start engine: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "engine error: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
