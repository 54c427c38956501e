// Command obsmesh runs the observability copilot service: an HTTP front over
// the orchestrator with Memgraph-backed retrieval, graph tools and the
// prebuilt agent trio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsmesh/obsmesh/agent"
	"github.com/obsmesh/obsmesh/config"
	"github.com/obsmesh/obsmesh/conversation"
	"github.com/obsmesh/obsmesh/core"
	"github.com/obsmesh/obsmesh/logging"
	"github.com/obsmesh/obsmesh/model"
	anthropicmodel "github.com/obsmesh/obsmesh/model/anthropic"
	openaimodel "github.com/obsmesh/obsmesh/model/openai"
	"github.com/obsmesh/obsmesh/orchestrator"
	"github.com/obsmesh/obsmesh/retrieval"
	"github.com/obsmesh/obsmesh/retrieval/embedding"
	"github.com/obsmesh/obsmesh/retrieval/memgraph"
	"github.com/obsmesh/obsmesh/server"
	"github.com/obsmesh/obsmesh/tool"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "obsmesh: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		Format:    cfg.Logging.Format,
		Component: "obsmesh",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	graph, err := memgraph.New(cfg.Memgraph.URI,
		memgraph.WithAuth(cfg.Memgraph.User, cfg.Memgraph.Password),
		memgraph.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("connect memgraph: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := graph.Close(closeCtx); err != nil {
			logger.Warn("memgraph close failed", "error", err)
		}
	}()
	if err := graph.Ping(ctx); err != nil {
		logger.Warn("memgraph unreachable at startup, retrieval will retry", "error", err)
	}

	gateway := retrieval.New(graph, newEmbedder(cfg), retrieval.WithLogger(logger))

	registry := tool.NewRegistry(tool.WithRegistryLogger(logger))
	for _, t := range tool.GraphTools(gateway) {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool: %w", err)
		}
	}
	if err := registry.Register(tool.NewCreateAlertTool(cfg.Alerts.Dir)); err != nil {
		return fmt.Errorf("register tool: %w", err)
	}

	agents := []core.Agent{
		agent.NewResearchAgent(newModel(cfg, agent.ResearchAgentName), registry, agent.WithLogger(logger)),
		agent.NewInsightsAgent(newModel(cfg, agent.InsightsAgentName), registry, agent.WithLogger(logger)),
		agent.NewAlertingAgent(newModel(cfg, agent.AlertingAgentName), registry, agent.WithLogger(logger)),
	}

	store, err := newStore(cfg, logger)
	if err != nil {
		return err
	}

	orchOpts := []func(o *orchestrator.Options){
		orchestrator.WithConfig(cfg.Orchestrator.Core()),
		orchestrator.WithLogger(logger),
		orchestrator.WithArchiver(graph),
	}
	var promReg *prometheus.Registry
	if cfg.Server.EnableMetrics {
		promReg = prometheus.NewRegistry()
		orchOpts = append(orchOpts, orchestrator.WithMetrics(orchestrator.NewMetrics(promReg)))
	}

	orch, err := orchestrator.New(store, registry, agents, orchOpts...)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	srvOpts := []func(o *server.Options){server.WithLogger(logger)}
	if promReg != nil {
		srvOpts = append(srvOpts, server.WithMetricsRegistry(promReg))
	}
	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.New(orch, store, srvOpts...),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.ListenAddr, "provider", cfg.Model.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newModel builds the completion model for one agent according to the
// configured provider and per-agent overrides.
func newModel(cfg config.Config, agentName string) model.Model {
	name, temperature := cfg.AgentModel(agentName)
	switch cfg.Model.Provider {
	case config.ProviderAnthropic:
		return anthropicmodel.NewModel(
			anthropicmodel.WithModel(anthropicsdk.Model(name)),
			anthropicmodel.WithTemperature(temperature),
			anthropicmodel.WithAPIKey(cfg.Model.AnthropicAPIKey),
		)
	case config.ProviderLocal:
		return openaimodel.NewModel(
			openaimodel.WithModel(name),
			openaimodel.WithTemperature(temperature),
			openaimodel.WithBaseURL(cfg.Model.BaseURL),
		)
	default:
		opts := []func(o *openaimodel.Options){
			openaimodel.WithModel(name),
			openaimodel.WithTemperature(temperature),
			openaimodel.WithAPIKey(cfg.Model.OpenAIAPIKey),
		}
		if cfg.Model.BaseURL != "" {
			opts = append(opts, openaimodel.WithBaseURL(cfg.Model.BaseURL))
		}
		return openaimodel.NewModel(opts...)
	}
}

// newEmbedder picks the embedding backend. Only the openai provider has a
// remote embedding API; the others fall back to the deterministic local
// embedder so retrieval stays functional.
func newEmbedder(cfg config.Config) retrieval.Embedder {
	if cfg.Model.Provider == config.ProviderOpenAI {
		return embedding.NewOpenAIEmbedder(
			embedding.WithModel(cfg.Embedding.Model),
			embedding.WithAPIKey(cfg.Model.OpenAIAPIKey),
		)
	}
	return embedding.NewStatic(1536)
}

func newStore(cfg config.Config, logger logging.Logger) (core.ConversationStore, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("using in-memory conversation store")
		return conversation.NewInMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("using redis conversation store", "addr", cfg.Redis.Addr)
	return conversation.NewRedisStore(client), nil
}
