// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables take precedence over the file
// so deployments can override individual settings without rewriting it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsmesh/obsmesh/orchestrator"
)

// Duration decodes YAML strings like "30s" via time.ParseDuration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderLocal     = "local"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	EnableMetrics  bool   `yaml:"enable_metrics"`
	ShutdownPeriod string `yaml:"shutdown_period"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// MemgraphConfig holds the Bolt connection settings for the graph store.
type MemgraphConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// AgentModelConfig overrides the model settings for one agent.
type AgentModelConfig struct {
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature"`
}

// ModelConfig selects the completion provider and per-agent models.
type ModelConfig struct {
	Provider        string `yaml:"provider"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	// BaseURL points the openai-compatible client at a local or proxy
	// endpoint. Required for the local provider.
	BaseURL            string                      `yaml:"base_url"`
	DefaultModel       string                      `yaml:"default_model"`
	DefaultTemperature float64                     `yaml:"default_temperature"`
	Agents             map[string]AgentModelConfig `yaml:"agents"`
}

// EmbeddingConfig selects the embedding model used by retrieval.
type EmbeddingConfig struct {
	Model string `yaml:"model"`
}

// RedisConfig holds the conversation store settings. An empty Addr selects
// the in-memory store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AlertsConfig holds the alert report output settings.
type AlertsConfig struct {
	Dir string `yaml:"dir"`
}

// OrchestratorConfig mirrors orchestrator.Config with YAML-friendly types.
type OrchestratorConfig struct {
	MaxIterations   int                 `yaml:"max_iterations"`
	StepTimeout     Duration            `yaml:"step_timeout"`
	QueueOnBusy     bool                `yaml:"queue_on_busy"`
	RolePermissions map[string][]string `yaml:"role_permissions"`
}

// Core converts the section into the orchestrator's own config type.
func (c OrchestratorConfig) Core() orchestrator.Config {
	return orchestrator.Config{
		MaxIterations:   c.MaxIterations,
		StepTimeout:     time.Duration(c.StepTimeout),
		QueueOnBusy:     c.QueueOnBusy,
		RolePermissions: c.RolePermissions,
	}
}

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
	Memgraph     MemgraphConfig     `yaml:"memgraph"`
	Model        ModelConfig        `yaml:"model"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Redis        RedisConfig        `yaml:"redis"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// Default returns the configuration used when neither file nor environment
// overrides a setting.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:    ":8080",
			EnableMetrics: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Memgraph: MemgraphConfig{
			URI: "bolt://localhost:7687",
		},
		Model: ModelConfig{
			Provider:     ProviderOpenAI,
			DefaultModel: "gpt-4o",
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Alerts: AlertsConfig{
			Dir: "alerts",
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations: 8,
			StepTimeout:   Duration(30 * time.Second),
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path if
// one is given, then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Server.ListenAddr, "LISTEN_ADDR")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")

	setString(&c.Model.Provider, "MODEL_PROVIDER")
	setString(&c.Model.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Model.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.Model.BaseURL, "MODEL_BASE_URL")
	setString(&c.Model.DefaultModel, "DEFAULT_MODEL_NAME")
	setFloat(&c.Model.DefaultTemperature, "DEFAULT_TEMPERATURE")

	for _, agent := range []string{"research", "insights", "alerting"} {
		prefix := strings.ToUpper(agent)
		override := c.Model.Agents[agent]
		changed := setString(&override.Model, prefix+"_MODEL_NAME")
		if v, ok := os.LookupEnv(prefix + "_TEMPERATURE"); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				override.Temperature = &f
				changed = true
			}
		}
		if changed {
			if c.Model.Agents == nil {
				c.Model.Agents = make(map[string]AgentModelConfig)
			}
			c.Model.Agents[agent] = override
		}
	}

	setString(&c.Embedding.Model, "EMBEDDING_MODEL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Alerts.Dir, "ALERTS_DIR")

	if v, ok := os.LookupEnv("MAX_ITERATIONS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Orchestrator.MaxIterations = n
		}
	}
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderLocal:
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if c.Model.Provider == ProviderOpenAI && c.Model.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
	}
	if c.Model.Provider == ProviderAnthropic && c.Model.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic provider")
	}
	if c.Model.Provider == ProviderLocal && c.Model.BaseURL == "" {
		return fmt.Errorf("model.base_url is required for the local provider")
	}
	if c.Orchestrator.MaxIterations <= 0 {
		return fmt.Errorf("orchestrator.max_iterations must be positive")
	}
	if c.Orchestrator.StepTimeout <= 0 {
		return fmt.Errorf("orchestrator.step_timeout must be positive")
	}
	return nil
}

// AgentModel resolves the model name and temperature for one agent, falling
// back to the defaults.
func (c Config) AgentModel(agent string) (string, float64) {
	model := c.Model.DefaultModel
	temperature := c.Model.DefaultTemperature
	if override, ok := c.Model.Agents[agent]; ok {
		if override.Model != "" {
			model = override.Model
		}
		if override.Temperature != nil {
			temperature = *override.Temperature
		}
	}
	return model, temperature
}

func setString(dst *string, key string) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
		return true
	}
	return false
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
