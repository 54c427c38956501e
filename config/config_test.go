package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "bolt://localhost:7687", cfg.Memgraph.URI)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model.DefaultModel)
	assert.Equal(t, 8, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.Core().StepTimeout)
}

func TestLoadFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen_addr: ":9090"
model:
  default_model: gpt-4o-mini
  agents:
    alerting:
      model: gpt-4o
      temperature: 0.2
orchestrator:
  max_iterations: 4
  step_timeout: 10s
  role_permissions:
    viewer: [research, insights]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.DefaultModel)
	assert.Equal(t, 4, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 10*time.Second, cfg.Orchestrator.Core().StepTimeout)
	assert.Equal(t, []string{"research", "insights"}, cfg.Orchestrator.RolePermissions["viewer"])

	model, temp := cfg.AgentModel("alerting")
	assert.Equal(t, "gpt-4o", model)
	assert.Equal(t, 0.2, temp)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MEMGRAPH_URI", "bolt://memgraph:7687")
	t.Setenv("DEFAULT_MODEL_NAME", "gpt-4o-mini")
	t.Setenv("ALERTING_MODEL_NAME", "gpt-4o")
	t.Setenv("ALERTING_TEMPERATURE", "0.5")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("MAX_ITERATIONS", "12")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt://memgraph:7687", cfg.Memgraph.URI)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.DefaultModel)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 12, cfg.Orchestrator.MaxIterations)

	model, temp := cfg.AgentModel("alerting")
	assert.Equal(t, "gpt-4o", model)
	assert.Equal(t, 0.5, temp)

	model, temp = cfg.AgentModel("research")
	assert.Equal(t, "gpt-4o-mini", model)
	assert.Zero(t, temp)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Model.Provider = "watsonx"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Model.Provider = ProviderOpenAI
	assert.Error(t, cfg.Validate(), "openai requires an api key")

	cfg.Model.Provider = ProviderLocal
	assert.Error(t, cfg.Validate(), "local requires a base url")
	cfg.Model.BaseURL = "http://localhost:8000/v1"
	assert.NoError(t, cfg.Validate())

	cfg.Orchestrator.MaxIterations = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
