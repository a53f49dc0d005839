// Package server assembles the RELIC engine process: graph store, rule
// registries, cascade engine, NATS bridge and metrics endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relic-lang/relic/internal/config"
	"github.com/relic-lang/relic/internal/engine"
	"github.com/relic-lang/relic/internal/events"
	"github.com/relic-lang/relic/internal/graph"
	"github.com/relic-lang/relic/internal/registry"
)

// Config holds process configuration from flags and environment.
type Config struct {
	ProjectDir  string   // directory containing relic.runtime.toml
	RulePaths   []string // overrides [rules].paths when non-empty
	DatabaseURL string   // overrides [graph].url when non-empty
	NATSURL     string   // overrides [nats].url when non-empty
	LogLevel    string
}

// Server is the running RELIC engine process.
type Server struct {
	config      *Config
	runtimeConf *config.Config
	driver      graph.Driver
	actions     *registry.Actions
	rules       *registry.Rules
	watcher     *engine.RuleWatcher
	engine      *engine.Engine
	inbound     *events.Emitter
	outbound    *events.Emitter
	bridge      *events.Bridge
	metricsSrv  *http.Server
	logger      *slog.Logger
}

// New wires up a Server from configuration. The graph store is connected
// and the rule files are loaded before this returns; a bad rule file or
// unreachable store fails startup.
func New(cfg *Config) (*Server, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	runtimeConf, err := config.Load(cfg.ProjectDir)
	if err != nil {
		logger.Warn("failed to load relic.runtime.toml, using environment", "error", err)
		runtimeConf = config.LoadFromEnv()
	}
	if cfg.DatabaseURL != "" {
		runtimeConf.Graph.Adapter = "postgres"
		runtimeConf.Graph.URL = cfg.DatabaseURL
	}
	if cfg.NATSURL != "" {
		runtimeConf.NATS.URL = cfg.NATSURL
	}
	if len(cfg.RulePaths) > 0 {
		runtimeConf.Rules.Paths = cfg.RulePaths
	}
	runtimeConf.ResolveSecrets()

	logger.Info("loaded runtime configuration",
		"adapter", runtimeConf.Graph.Adapter,
		"rule_files", len(runtimeConf.Rules.Paths),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	driver, err := newDriver(ctx, &runtimeConf.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
	}

	s := &Server{
		config:      cfg,
		runtimeConf: runtimeConf,
		driver:      driver,
		actions:     registry.NewActions(),
		rules:       registry.NewRules(),
		inbound:     events.NewEmitter(),
		outbound:    events.NewEmitter(),
		logger:      logger,
	}

	s.watcher = engine.NewRuleWatcher(runtimeConf.Rules.Paths, s.actions, s.rules, logger)
	if err := s.watcher.LoadAll(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("failed to load rule files: %w", err)
	}
	logger.Info("definitions loaded",
		"actions", s.actions.Count(), "rules", s.rules.Count())

	metrics := engine.NewMetrics(prometheus.DefaultRegisterer)
	s.engine = &engine.Engine{
		Rules:    s.rules,
		Actions:  s.actions,
		Driver:   driver,
		Outbound: s.outbound,
		Logger:   logger,
		Metrics:  metrics,
		MaxDepth: runtimeConf.Engine.MaxCascadeDepth,
	}
	s.engine.Subscribe(s.inbound)

	return s, nil
}

func newDriver(ctx context.Context, cfg *config.GraphConfig) (graph.Driver, error) {
	switch cfg.Adapter {
	case "", "memory":
		return graph.NewMemory(), nil
	case "postgres":
		if cfg.URL == "" {
			return nil, fmt.Errorf("graph adapter %q requires a url", cfg.Adapter)
		}
		return graph.NewPostgres(ctx, cfg.URL)
	case "embedded":
		dataDir := cfg.Embedded.DataDir
		if cfg.Embedded.Ephemeral {
			dataDir = ""
		}
		return graph.NewEmbedded(ctx, graph.EmbeddedOptions{
			Port:    cfg.Embedded.Port,
			DataDir: dataDir,
		})
	default:
		return nil, fmt.Errorf("unknown graph adapter %q", cfg.Adapter)
	}
}

// Run starts the bridge, watcher and metrics endpoint, then blocks until
// SIGINT or SIGTERM.
func (s *Server) Run() error {
	if s.runtimeConf.NATS.URL != "" {
		bridge, err := events.NewBridge(events.BridgeConfig{
			URL:            s.runtimeConf.NATS.URL,
			InboundSubject: s.runtimeConf.NATS.InboundSubject,
			OutboundPrefix: s.runtimeConf.NATS.OutboundPrefix,
		}, s.inbound, s.logger)
		if err != nil {
			return err
		}
		s.bridge = bridge
		s.outbound.Subscribe(bridge)
		s.logger.Info("nats bridge connected",
			"inbound", s.runtimeConf.NATS.InboundSubject,
			"outbound", s.runtimeConf.NATS.OutboundPrefix)
	}

	if s.runtimeConf.Rules.Watch {
		if err := s.watcher.Start(); err != nil {
			return err
		}
	}

	if addr := s.runtimeConf.Metrics.Listen; addr != "" {
		s.metricsSrv = &http.Server{Addr: addr, Handler: s.metricsRouter()}
		go func() {
			s.logger.Info("metrics endpoint listening", "addr", addr)
			if err := s.metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				s.logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	s.logger.Info("engine running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("shutting down")
	return s.Close()
}

// metricsRouter builds the observability endpoint: Prometheus metrics
// plus a liveness probe.
func (s *Server) metricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Close releases every resource the server holds.
func (s *Server) Close() error {
	if s.runtimeConf.Rules.Watch {
		s.watcher.Stop()
	}
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			s.logger.Error("nats bridge close error", "error", err)
		}
	}
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			s.logger.Error("metrics endpoint shutdown error", "error", err)
		}
	}
	if s.driver != nil {
		s.logger.Info("closing graph store")
		if err := s.driver.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Inbound exposes the inbound emitter so embedding hosts can feed change
// events directly.
func (s *Server) Inbound() *events.Emitter { return s.inbound }

// Outbound exposes the synthetic event emitter.
func (s *Server) Outbound() *events.Emitter { return s.outbound }
