package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	path := filepath.Join(dir, "relic.runtime.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Graph.Adapter != "memory" {
		t.Errorf("adapter = %q, want memory", cfg.Graph.Adapter)
	}
	if cfg.Engine.MaxCascadeDepth != 10 {
		t.Errorf("max depth = %d, want 10", cfg.Engine.MaxCascadeDepth)
	}
	if cfg.NATS.InboundSubject != "relic.events.inbound" {
		t.Errorf("inbound subject = %q", cfg.NATS.InboundSubject)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[graph]
adapter = "postgres"
url = "postgres://localhost:5432/relic"

[engine]
max_cascade_depth = 5

[rules]
paths = ["rules/procurement.rdsl", "rules/invoicing.rdsl"]
watch = true

[metrics]
listen = ":9090"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Graph.Adapter != "postgres" {
		t.Errorf("adapter = %q", cfg.Graph.Adapter)
	}
	if cfg.Engine.MaxCascadeDepth != 5 {
		t.Errorf("max depth = %d", cfg.Engine.MaxCascadeDepth)
	}
	if len(cfg.Rules.Paths) != 2 || !cfg.Rules.Watch {
		t.Errorf("rules = %+v", cfg.Rules)
	}
	if cfg.Metrics.Listen != ":9090" {
		t.Errorf("metrics listen = %q", cfg.Metrics.Listen)
	}
	// Unset values still pick up defaults.
	if cfg.Graph.Embedded.Port != 5433 {
		t.Errorf("embedded port = %d, want default", cfg.Graph.Embedded.Port)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[graph\nadapter =")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[graph]
adapter = "embedded"

[environments.production.graph]
adapter = "postgres"
url = "env:DATABASE_URL"

[environments.production.engine]
max_cascade_depth = 8
`)

	t.Setenv("RELIC_ENV", "production")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Graph.Adapter != "postgres" {
		t.Errorf("adapter = %q, want production override", cfg.Graph.Adapter)
	}
	if cfg.Engine.MaxCascadeDepth != 8 {
		t.Errorf("max depth = %d, want 8", cfg.Engine.MaxCascadeDepth)
	}
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("TEST_GRAPH_URL", "postgres://prod:5432/relic")

	cfg := defaultConfig()
	cfg.Graph.URL = "env:TEST_GRAPH_URL"
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.ResolveSecrets()

	if cfg.Graph.URL != "postgres://prod:5432/relic" {
		t.Errorf("graph url = %q", cfg.Graph.URL)
	}
	// Plain values pass through untouched.
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env:5432/relic")
	t.Setenv("NATS_URL", "nats://env:4222")

	cfg := LoadFromEnv()
	if cfg.Graph.Adapter != "postgres" || cfg.Graph.URL != "postgres://env:5432/relic" {
		t.Errorf("graph = %+v", cfg.Graph)
	}
	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("nats url = %q", cfg.NATS.URL)
	}
}
