package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowforge-ai/flowforge/types"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "FLOWFORGE_"

// Load builds the configuration: defaults, then the YAML file if path is
// non-empty, then FLOWFORGE_* environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.Errorf(types.ErrInternal, "reading config file %s", path).WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.Errorf(types.ErrInternal, "parsing config file %s", path).WithCause(err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays FLOWFORGE_* variables. Only keys an operator plausibly
// sets per deployment are mapped; everything else belongs in the YAML file.
func (c *Config) applyEnv() {
	envString("STORE_DRIVER", &c.Store.Driver)
	envString("STORE_DSN", &c.Store.DSN)

	envString("REDIS_ADDR", &c.Redis.Addr)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envInt("REDIS_DB", &c.Redis.DB)

	envInt("ENGINE_MAX_CONCURRENCY", &c.Engine.MaxConcurrency)
	envInt("ENGINE_MAX_ATTEMPTS", &c.Engine.MaxAttempts)
	envDuration("ENGINE_RETRY_BASE_DELAY", &c.Engine.RetryBaseDelay)
	envFloat("ENGINE_COST_CAP_USD", &c.Engine.CostCapUSD)
	envDuration("ENGINE_HUMAN_TIMEOUT", &c.Engine.HumanTimeout)

	envDuration("SANDBOX_MAX_EXECUTION_TIME", &c.Sandbox.MaxExecutionTime)
	envInt("SANDBOX_MAX_OUTPUT_BYTES", &c.Sandbox.MaxOutputBytes)
	envInt("SANDBOX_RATE_MAX_CALLS", &c.Sandbox.RateMaxCalls)
	envDuration("SANDBOX_RATE_WINDOW", &c.Sandbox.RateWindow)
	envStrings("SANDBOX_ALLOWED_HOSTS", &c.Sandbox.AllowedHosts)

	envString("TOOLS_SLACK_WEBHOOK_URL", &c.Tools.SlackWebhookURL)

	envString("ANTHROPIC_API_KEY", &c.Anthropic.APIKey)
	envString("ANTHROPIC_BASE_URL", &c.Anthropic.BaseURL)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)
	envString("METRICS_NAMESPACE", &c.Metrics.Namespace)
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func envStrings(key string, dst *[]string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		parts := strings.Split(v, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(key string, dst *types.Duration) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = types.Duration(d)
		}
	}
}
