// Package config loads agentree's configuration: a YAML file with ${VAR}
// expansion, optional .env files and a few AGENTREE_* overrides, decoded
// onto defaults and validated.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentree/agent"
	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/interrupt"
	"github.com/hupe1980/agentree/logging"
	"github.com/hupe1980/agentree/model"
	"github.com/hupe1980/agentree/tool/builtin"
)

// Environment overrides applied after the file is decoded.
const (
	EnvProvider = "AGENTREE_PROVIDER"
	EnvModel    = "AGENTREE_MODEL"
	EnvAddr     = "AGENTREE_ADDR"
	EnvLogLevel = "AGENTREE_LOG_LEVEL"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ModelConfig selects and tunes the LLM backend.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	// APIKey falls back to the provider's usual environment variable.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Stream  bool   `yaml:"stream"`
}

// AgentConfig tunes the reason/act loop.
type AgentConfig struct {
	ExitPolicy    string `yaml:"exit_policy"`
	FinalTool     string `yaml:"final_tool"`
	AskTool       string `yaml:"ask_tool"`
	MaxModelCalls int    `yaml:"max_model_calls"`
}

// InterruptConfig tunes the ask-the-user channel.
type InterruptConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// BlackboardConfig configures the shared note board.
type BlackboardConfig struct {
	// MirrorPath, when set, appends every note to this file as JSON lines.
	MirrorPath string `yaml:"mirror_path"`
}

// PromptsConfig points at a prompt set layered over the built-in one.
type PromptsConfig struct {
	Path string `yaml:"path"`
}

// ToolsConfig selects the tools of each catalog. Empty lists select all.
type ToolsConfig struct {
	// Orchestrator lists the tools of step agents.
	Orchestrator []string `yaml:"orchestrator"`
	// Secondary lists the tools sub-agents may be granted.
	Secondary []string `yaml:"secondary"`
	// Recursive lets sub-agents spawn sub-agents of their own.
	Recursive bool `yaml:"recursive"`
}

// ServerConfig configures `agentree serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Config is the root configuration.
type Config struct {
	Model      ModelConfig       `yaml:"model"`
	Agent      AgentConfig       `yaml:"agent"`
	Retry      model.RetryPolicy `yaml:"retry"`
	Limits     core.SpawnLimits  `yaml:"limits"`
	Interrupt  InterruptConfig   `yaml:"interrupt"`
	Blackboard BlackboardConfig  `yaml:"blackboard"`
	Prompts    PromptsConfig     `yaml:"prompts"`
	Tools      ToolsConfig       `yaml:"tools"`
	Server     ServerConfig      `yaml:"server"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()

	return cfg
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Model.Provider == "" {
		c.Model.Provider = ProviderOpenAI
	}

	if c.Model.Name == "" {
		switch c.Model.Provider {
		case ProviderAnthropic:
			c.Model.Name = "claude-3-5-sonnet-20241022"
		default:
			c.Model.Name = "gpt-4o-mini"
		}
	}

	if c.Model.Temperature == 0 {
		c.Model.Temperature = 0.7
	}

	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = 4096
	}

	if c.Agent.ExitPolicy == "" {
		c.Agent.ExitPolicy = string(agent.ExitBaseline)
	}

	if c.Agent.FinalTool == "" {
		c.Agent.FinalTool = builtin.ProvideAnswerName
	}

	if c.Agent.AskTool == "" {
		c.Agent.AskTool = interrupt.ToolName
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = model.DefaultRetryPolicy.MaxAttempts
	}

	if c.Retry.Delay == 0 {
		c.Retry.Delay = model.DefaultRetryPolicy.Delay
	}

	if c.Retry.Timeout == 0 {
		c.Retry.Timeout = model.DefaultRetryPolicy.Timeout
	}

	if c.Limits.MaxDepth == 0 {
		c.Limits.MaxDepth = core.DefaultSpawnLimits.MaxDepth
	}

	if c.Limits.MaxConcurrent == 0 {
		c.Limits.MaxConcurrent = core.DefaultSpawnLimits.MaxConcurrent
	}

	if c.Interrupt.Timeout == 0 {
		c.Interrupt.Timeout = 5 * time.Minute
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}

	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider))
	}

	if _, err := agent.ParseExitPolicy(c.Agent.ExitPolicy); err != nil {
		errs = append(errs, fmt.Errorf("agent.exit_policy: %w", err))
	}

	if c.Agent.MaxModelCalls < 0 {
		errs = append(errs, errors.New("agent.max_model_calls: must not be negative"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts: must be at least 1"))
	}

	if c.Retry.Delay < 0 || c.Retry.Timeout < 0 {
		errs = append(errs, errors.New("retry: durations must not be negative"))
	}

	if c.Limits.MaxDepth < 1 {
		errs = append(errs, errors.New("limits.max_depth: must be at least 1"))
	}

	if c.Limits.MaxConcurrent < 1 {
		errs = append(errs, errors.New("limits.max_concurrent: must be at least 1"))
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// LoggerConfig translates the logging section.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.Level, _ = logging.ParseLevel(c.Logging.Level)
	cfg.Format = c.Logging.Format
	cfg.AddSource = c.Logging.AddSource
	cfg.Component = "agentree"

	return cfg
}

// LoadEnvFiles loads .env.local and .env from the working directory when
// present. Variables already set are not overridden.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	return nil
}

// Load reads path (may be empty for defaults only), applies environment
// overrides, defaults and validation.
func Load(path string) (*Config, error) {
	var data []byte

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		data = b
	}

	return Parse(data)
}

// Parse decodes YAML data the way Load does.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}

	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg := &Config{}
	if err := decode(expandEnv(raw), cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnv(cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func decode(input map[string]any, out *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvProvider); v != "" {
		cfg.Model.Provider = strings.ToLower(v)
	}

	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model.Name = v
	}

	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

// expandEnv replaces ${VAR} and $VAR in every string value.
func expandEnv(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = expandValue(v)
	}

	return out
}

func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case map[string]any:
		return expandEnv(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = expandValue(item)
		}

		return out
	default:
		return v
	}
}
