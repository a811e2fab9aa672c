package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentree/logging"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, "baseline", cfg.Agent.ExitPolicy)
	assert.Equal(t, "provide_answer", cfg.Agent.FinalTool)
	assert.Equal(t, "ask_user", cfg.Agent.AskTool)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.Delay)
	assert.Equal(t, 3, cfg.Limits.MaxDepth)
	assert.Equal(t, 8, cfg.Limits.MaxConcurrent)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	t.Setenv("TEST_AGENTREE_KEY", "sk-test")

	cfg, err := Parse([]byte(`
model:
  provider: anthropic
  api_key: ${TEST_AGENTREE_KEY}
agent:
  exit_policy: response_gated
  max_model_calls: 20
retry:
  max_attempts: 5
  delay: 250ms
  timeout: 30s
limits:
  max_depth: 2
  max_concurrent: 4
interrupt:
  timeout: 1m
blackboard:
  mirror_path: notes.jsonl
tools:
  orchestrator: [create_agent, provide_answer]
  secondary: calculator,current_date
logging:
  level: debug
  format: json
`))
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Model.Name)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, "response_gated", cfg.Agent.ExitPolicy)
	assert.Equal(t, 20, cfg.Agent.MaxModelCalls)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, 30*time.Second, cfg.Retry.Timeout)
	assert.Equal(t, 2, cfg.Limits.MaxDepth)
	assert.Equal(t, 4, cfg.Limits.MaxConcurrent)
	assert.Equal(t, time.Minute, cfg.Interrupt.Timeout)
	assert.Equal(t, "notes.jsonl", cfg.Blackboard.MirrorPath)
	assert.Equal(t, []string{"create_agent", "provide_answer"}, cfg.Tools.Orchestrator)
	assert.Equal(t, []string{"calculator", "current_date"}, cfg.Tools.Secondary)

	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvProvider, "Anthropic")
	t.Setenv(EnvModel, "claude-test")
	t.Setenv(EnvAddr, "127.0.0.1:9000")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Parse([]byte("model:\n  provider: openai\n  name: gpt-x\n"))
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "claude-test", cfg.Model.Name)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("model:\n  provider: llama\nagent:\n  exit_policy: forever\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.provider")
	assert.Contains(t, err.Error(), "agent.exit_policy")

	_, err = Parse([]byte("limits:\n  max_depth: -1\n"))
	assert.ErrorContains(t, err, "limits.max_depth")

	_, err = Parse([]byte("unknown_section: 1\n"))
	assert.ErrorContains(t, err, "decode config")

	_, err = Parse([]byte("model: [\n"))
	assert.ErrorContains(t, err, "parse config")
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "agentree.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: :9999\n"), 0o600))

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TEST_AGENTREE_DOTENV=loaded\n"), 0o600))

	t.Chdir(dir)
	t.Setenv("TEST_AGENTREE_DOTENV", "")
	os.Unsetenv("TEST_AGENTREE_DOTENV")

	require.NoError(t, LoadEnvFiles())
	assert.Equal(t, "loaded", os.Getenv("TEST_AGENTREE_DOTENV"))
}
