// Package flowforge assembles a fully wired workflow engine from
// configuration: run store, tool sandbox, model providers, cost ledger, and
// metrics. The calculator and http_request built-ins are always registered;
// slack_post joins them when a webhook URL is configured and email_send when
// a sender is supplied. Callers needing finer control wire the subpackages
// directly.
package flowforge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/config"
	"github.com/flowforge-ai/flowforge/engine"
	"github.com/flowforge-ai/flowforge/executor"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/ledger"
	"github.com/flowforge-ai/flowforge/providers/anthropic"
	"github.com/flowforge-ai/flowforge/sandbox"
	"github.com/flowforge-ai/flowforge/store"
)

// Version is overridden at build time.
var Version = "dev"

// Option adjusts the assembly beyond what configuration expresses.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	registerer  prometheus.Registerer
	providers   *executor.Providers
	tools       []sandbox.Tool
	emailSender sandbox.EmailSender
}

// WithLogger sets the logger. Without it one is built from the config's log
// section.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics registers the engine's collectors against reg. Without it
// metrics are disabled, which keeps repeated assemblies in one process from
// fighting over the default registry.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithProviders replaces the provider registry built from configuration.
func WithProviders(p *executor.Providers) Option {
	return func(o *options) { o.providers = p }
}

// WithTools registers extra tools alongside the built-ins.
func WithTools(tools ...sandbox.Tool) Option {
	return func(o *options) { o.tools = append(o.tools, tools...) }
}

// WithEmailSender supplies the mail transport and registers the email_send
// built-in with it.
func WithEmailSender(sender sandbox.EmailSender) Option {
	return func(o *options) { o.emailSender = sender }
}

// New assembles an engine from configuration.
func New(cfg *config.Config, opts ...Option) (*engine.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		built, err := cfg.Log.BuildLogger()
		if err != nil {
			return nil, err
		}
		logger = built
	}

	runStore, err := buildStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	registry := sandbox.NewRegistry()
	registry.MustRegister(sandbox.NewCalculatorTool())
	registry.MustRegister(sandbox.NewHTTPRequestTool(nil))
	if cfg.Tools.SlackWebhookURL != "" {
		registry.MustRegister(sandbox.NewSlackTool(cfg.Tools.SlackWebhookURL, nil))
	}
	if o.emailSender != nil {
		registry.MustRegister(sandbox.NewEmailTool(o.emailSender))
	}
	for _, tool := range o.tools {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}

	sb := sandbox.New(sandbox.Options{
		Registry:         registry,
		Limiter:          buildLimiter(cfg),
		AllowedHosts:     cfg.Sandbox.AllowedHosts,
		MaxExecutionTime: cfg.Sandbox.MaxExecutionTime.Std(),
		MaxOutputBytes:   cfg.Sandbox.MaxOutputBytes,
		Logger:           logger,
	})

	providers := o.providers
	if providers == nil {
		providers = buildProviders(cfg.Anthropic, logger)
	}

	costs := ledger.New(logger)
	exec := executor.New(executor.Options{
		Providers:          providers,
		Sandbox:            sb,
		Ledger:             costs,
		Logger:             logger,
		MaxTurns:           cfg.Executor.MaxTurns,
		MaxContextTokens:   cfg.Executor.MaxContextTokens,
		MaxHistoryMessages: cfg.Executor.MaxHistoryMessages,
	})

	var collector *metrics.Collector
	if o.registerer != nil {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, o.registerer)
	}

	return engine.New(engine.Options{
		Store:          runStore,
		Ledger:         costs,
		Executor:       exec,
		Sandbox:        sb,
		Logger:         logger,
		Metrics:        collector,
		MaxConcurrency: cfg.Engine.MaxConcurrency,
		MaxAttempts:    cfg.Engine.MaxAttempts,
		RetryBaseDelay: cfg.Engine.RetryBaseDelay.Std(),
		CostCapUSD:     cfg.Engine.CostCapUSD,
		HumanTimeout:   cfg.Engine.HumanTimeout.Std(),
	}), nil
}

func buildStore(cfg config.StoreConfig) (store.RunStore, error) {
	if cfg.Driver == "memory" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenGorm(cfg.Driver, cfg.DSN)
}

func buildLimiter(cfg *config.Config) sandbox.Limiter {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return sandbox.NewRedisLimiter(client, cfg.Sandbox.RateMaxCalls, cfg.Sandbox.RateWindow.Std())
	}
	return sandbox.NewLocalLimiter(cfg.Sandbox.RateMaxCalls, cfg.Sandbox.RateWindow.Std())
}

func buildProviders(cfg config.AnthropicConfig, logger *zap.Logger) *executor.Providers {
	providers := executor.NewProviders()
	if cfg.APIKey == "" {
		return providers
	}
	p := anthropic.New(anthropic.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout.Std(),
	}, logger)
	providers.SetFallback(p)
	for _, model := range cfg.Models {
		providers.Register(model, p)
	}
	return providers
}
