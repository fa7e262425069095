// Package config loads engine configuration with the precedence
// defaults -> YAML file -> environment variables (prefix FLOWFORGE_).
package config

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/flowforge-ai/flowforge/types"
)

// Config is the full configuration tree.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Tools     ToolsConfig     `yaml:"tools"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// EngineConfig tunes run execution.
type EngineConfig struct {
	MaxConcurrency int            `yaml:"max_concurrency"`
	MaxAttempts    int            `yaml:"max_attempts"`
	RetryBaseDelay types.Duration `yaml:"retry_base_delay"`
	CostCapUSD     float64        `yaml:"cost_cap_usd"`
	HumanTimeout   types.Duration `yaml:"human_timeout"`
}

// StoreConfig selects run persistence. Driver is one of memory, sqlite,
// postgres, mysql.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the distributed tool rate limiter. An empty Addr keeps
// rate limiting process-local.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SandboxConfig tunes tool execution controls.
type SandboxConfig struct {
	MaxExecutionTime types.Duration `yaml:"max_execution_time"`
	MaxOutputBytes   int            `yaml:"max_output_bytes"`
	RateMaxCalls     int            `yaml:"rate_max_calls"`
	RateWindow       types.Duration `yaml:"rate_window"`
	AllowedHosts     []string       `yaml:"allowed_hosts"`
}

// ToolsConfig configures built-in tool integrations. A tool whose
// integration is left empty is not registered.
type ToolsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// ExecutorConfig tunes the agent conversation loop.
type ExecutorConfig struct {
	MaxTurns           int `yaml:"max_turns"`
	MaxContextTokens   int `yaml:"max_context_tokens"`
	MaxHistoryMessages int `yaml:"max_history_messages"`
}

// AnthropicConfig configures the Anthropic model provider. Models lists the
// model names routed to it; with an APIKey set it also serves as fallback.
type AnthropicConfig struct {
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Timeout types.Duration `yaml:"timeout"`
	Models  []string       `yaml:"models"`
}

// LogConfig configures zap output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// MetricsConfig configures the Prometheus namespace.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxConcurrency: 4,
			MaxAttempts:    3,
			RetryBaseDelay: types.Duration(time.Second),
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Sandbox: SandboxConfig{
			MaxExecutionTime: types.Duration(30 * time.Second),
			MaxOutputBytes:   100 * 1024,
			RateMaxCalls:     60,
			RateWindow:       types.Duration(time.Minute),
		},
		Executor: ExecutorConfig{
			MaxTurns:           10,
			MaxContextTokens:   100_000,
			MaxHistoryMessages: 20,
		},
		Anthropic: AnthropicConfig{
			Timeout: types.Duration(60 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Namespace: "flowforge",
		},
	}
}

// Validate checks values a typo would silently break.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "mysql":
	default:
		return types.Errorf(types.ErrInternal, "unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return types.Errorf(types.ErrInternal, "store driver %q needs a dsn", c.Store.Driver)
	}
	if c.Engine.MaxConcurrency <= 0 {
		return types.NewError(types.ErrInternal, "engine.max_concurrency must be positive")
	}
	if c.Engine.MaxAttempts <= 0 {
		return types.NewError(types.ErrInternal, "engine.max_attempts must be positive")
	}
	if c.Sandbox.RateMaxCalls <= 0 || c.Sandbox.RateWindow.Std() <= 0 {
		return types.NewError(types.ErrInternal, "sandbox rate limit must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return types.Errorf(types.ErrInternal, "unknown log format %q", c.Log.Format)
	}
	return nil
}

// BuildLogger constructs a zap logger from the log section.
func (c LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "unknown log level %q", c.Level).WithCause(err)
	}

	zapCfg := zap.NewProductionConfig()
	if c.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "building logger").WithCause(err)
	}
	return logger, nil
}
