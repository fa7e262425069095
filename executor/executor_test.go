package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/flowforge/ledger"
	"github.com/flowforge-ai/flowforge/sandbox"
	"github.com/flowforge-ai/flowforge/types"
)

// scriptedProvider returns canned responses in order, then repeats the last.
type scriptedProvider struct {
	responses []*ChatResponse
	err       error
	calls     int
	requests  []ChatRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return p.responses[i], nil
}

func finalResponse(content string, tokens int) *ChatResponse {
	return &ChatResponse{
		Message:    types.NewAssistantMessage(content),
		Usage:      types.TokenUsage{PromptTokens: tokens / 2, CompletionTokens: tokens / 2, TotalTokens: tokens},
		StopReason: "stop",
	}
}

func toolUseResponse(callID, tool string, args string, tokens int) *ChatResponse {
	msg := types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{
		{ID: callID, Name: tool, Arguments: json.RawMessage(args)},
	})
	return &ChatResponse{
		Message:    msg,
		Usage:      types.TokenUsage{TotalTokens: tokens},
		StopReason: "tool_use",
	}
}

func newTestExecutor(t *testing.T, provider Provider, opts Options) (*Executor, *ledger.Ledger) {
	t.Helper()
	providers := NewProviders()
	providers.SetFallback(provider)
	opts.Providers = providers

	if opts.Sandbox == nil {
		registry := sandbox.NewRegistry()
		registry.MustRegister(sandbox.NewCalculatorTool())
		opts.Sandbox = sandbox.New(sandbox.Options{Registry: registry})
	}
	led := ledger.New(nil)
	opts.Ledger = led
	return New(opts), led
}

func TestExecutor_FinalResponseWithoutTools(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*ChatResponse{finalResponse("ok", 100)}}
	exec, led := newTestExecutor(t, provider, Options{})

	result, err := exec.Execute(context.Background(), Request{
		RunID:        "run-1",
		TaskID:       "task-1",
		AgentID:      "agent-1",
		Model:        "test-model",
		Instructions: "Be terse.",
		Input:        "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Response)
	assert.Equal(t, 1, result.Turns)
	assert.Equal(t, 100, result.Usage.TotalTokens)
	assert.Empty(t, result.ToolResults)

	// System + user + assistant.
	require.Len(t, result.Messages, 3)
	assert.Equal(t, types.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, types.RoleUser, result.Messages[1].Role)

	// Usage lands on both scopes.
	assert.Equal(t, 100, led.TotalFor("run-1").TokensUsed)
	assert.Equal(t, 100, led.TotalFor("task-1").TokensUsed)
	assert.Greater(t, led.TotalFor("run-1").CostUSD, 0.0)
}

func TestExecutor_ToolLoop(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*ChatResponse{
		toolUseResponse("call-1", "calculator", `{"operation": "add", "a": 2, "b": 3}`, 50),
		finalResponse("the answer is 5", 30),
	}}
	exec, _ := newTestExecutor(t, provider, Options{})

	result, err := exec.Execute(context.Background(), Request{
		AgentID: "agent-1",
		Model:   "test-model",
		Input:   "add 2 and 3",
		Tools:   []string{"calculator"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 5", result.Response)
	assert.Equal(t, 2, result.Turns)
	assert.Equal(t, 80, result.Usage.TotalTokens)

	require.Len(t, result.ToolResults, 1)
	assert.Equal(t, "calculator", result.ToolResults[0].Name)
	assert.False(t, result.ToolResults[0].IsError())

	// The second model call must include the tool result message.
	require.Len(t, provider.requests, 2)
	last := provider.requests[1].Messages[len(provider.requests[1].Messages)-1]
	assert.Equal(t, types.RoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)

	// Tool schemas are passed through to the provider.
	require.Len(t, provider.requests[0].Tools, 1)
	assert.Equal(t, "calculator", provider.requests[0].Tools[0].Name)
}

func TestExecutor_ToolTimeoutPropagatesRetryable(t *testing.T) {
	t.Parallel()

	registry := sandbox.NewRegistry()
	registry.MustRegister(&sleepTool{})
	sb := sandbox.New(sandbox.Options{Registry: registry, MaxExecutionTime: 20 * time.Millisecond})

	provider := &scriptedProvider{responses: []*ChatResponse{
		toolUseResponse("call-1", "sleep", `{}`, 10),
	}}
	exec, _ := newTestExecutor(t, provider, Options{Sandbox: sb})

	_, err := exec.Execute(context.Background(), Request{
		AgentID: "agent-1",
		Model:   "test-model",
		Input:   "sleep",
		Tools:   []string{"sleep"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrToolTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestExecutor_ProviderErrorWrapped(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	provider := &scriptedProvider{err: cause}
	exec, _ := newTestExecutor(t, provider, Options{})

	_, err := exec.Execute(context.Background(), Request{
		AgentID: "agent-1",
		Model:   "test-model",
		Input:   "hi",
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentExecution, types.GetErrorCode(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, types.IsRetryable(err))
}

func TestExecutor_TypedProviderErrorPassesThrough(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{
		err: types.NewError(types.ErrRateLimited, "upstream throttled").WithRetryable(true),
	}
	exec, _ := newTestExecutor(t, provider, Options{})

	_, err := exec.Execute(context.Background(), Request{Model: "test-model", Input: "hi"})
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestExecutor_TurnCeiling(t *testing.T) {
	t.Parallel()

	// The provider asks for a tool on every turn, never finishing.
	provider := &scriptedProvider{responses: []*ChatResponse{
		toolUseResponse("call-n", "calculator", `{"operation": "add", "a": 1, "b": 1}`, 10),
	}}
	exec, _ := newTestExecutor(t, provider, Options{MaxTurns: 3})

	_, err := exec.Execute(context.Background(), Request{
		AgentID: "agent-1",
		Model:   "test-model",
		Input:   "loop forever",
		Tools:   []string{"calculator"},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrContextTooLong, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
	assert.Equal(t, 3, provider.calls)
}

func TestExecutor_ContextCeiling(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []*ChatResponse{finalResponse("ok", 10)}}
	exec, _ := newTestExecutor(t, provider, Options{MaxContextTokens: 5})

	longInput := "this input is comfortably longer than five tokens worth of text"
	_, err := exec.Execute(context.Background(), Request{Model: "test-model", Input: longInput})
	require.Error(t, err)
	assert.Equal(t, types.ErrContextTooLong, types.GetErrorCode(err))
}

func TestExecutor_NoProviderForModel(t *testing.T) {
	t.Parallel()

	exec := New(Options{Providers: NewProviders()})
	_, err := exec.Execute(context.Background(), Request{Model: "unknown"})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentExecution, types.GetErrorCode(err))
}

type sleepTool struct{}

func (t *sleepTool) Name() string                     { return "sleep" }
func (t *sleepTool) Description() string              { return "sleeps" }
func (t *sleepTool) ParameterSchema() json.RawMessage { return json.RawMessage(`{"type": "object"}`) }

func (t *sleepTool) Execute(ctx context.Context, _ map[string]any) (any, error) {
	select {
	case <-time.After(5 * time.Second):
		return "rested", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
