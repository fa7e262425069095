package executor

import (
	"context"
	"sync"

	"github.com/flowforge-ai/flowforge/types"
)

// ChatRequest is one model invocation.
type ChatRequest struct {
	Model       string             `json:"model"`
	Messages    []types.Message    `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
}

// ChatResponse is the model's reply. A response carrying tool calls asks the
// executor to run them and call again.
type ChatResponse struct {
	Message    types.Message    `json:"message"`
	Usage      types.TokenUsage `json:"usage"`
	StopReason string           `json:"stop_reason,omitempty"`
}

// Provider is a model backend. Implementations wrap one vendor API and are
// registered per model name.
type Provider interface {
	// Name identifies the provider for logs.
	Name() string
	// Chat performs one model call.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Providers resolves a model name to its backend.
type Providers struct {
	mu       sync.RWMutex
	byModel  map[string]Provider
	fallback Provider
}

// NewProviders creates an empty provider registry.
func NewProviders() *Providers {
	return &Providers{byModel: make(map[string]Provider)}
}

// Register binds a model name to a provider.
func (p *Providers) Register(model string, provider Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byModel[model] = provider
}

// SetFallback sets the provider used for models without an explicit binding.
func (p *Providers) SetFallback(provider Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fallback = provider
}

// For resolves the provider for a model.
func (p *Providers) For(model string) (Provider, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if provider, ok := p.byModel[model]; ok {
		return provider, nil
	}
	if p.fallback != nil {
		return p.fallback, nil
	}
	return nil, types.Errorf(types.ErrAgentExecution, "no provider registered for model %q", model)
}
