package executor

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/ledger"
	"github.com/flowforge-ai/flowforge/sandbox"
	"github.com/flowforge-ai/flowforge/types"
)

// Options configures an Executor.
type Options struct {
	Providers *Providers
	Sandbox   *sandbox.Sandbox
	Ledger    *ledger.Ledger
	Pricing   ledger.Pricing
	Tokenizer types.Tokenizer
	Logger    *zap.Logger

	// MaxTurns caps model round-trips within one Execute call.
	MaxTurns int
	// MaxContextTokens caps the assembled prompt size.
	MaxContextTokens int
	// MaxHistoryMessages caps how much conversation history survives
	// trimming.
	MaxHistoryMessages int
}

// Executor runs one agent conversation turn against a model provider, with
// tool access mediated by the sandbox.
type Executor struct {
	providers  *Providers
	sandbox    *sandbox.Sandbox
	ledger     *ledger.Ledger
	pricing    ledger.Pricing
	tokenizer  types.Tokenizer
	logger     *zap.Logger
	maxTurns   int
	maxContext int
	maxHistory int
}

// New creates an executor. Providers and Sandbox are required; everything
// else has a default.
func New(opts Options) *Executor {
	if opts.Providers == nil {
		opts.Providers = NewProviders()
	}
	if opts.Sandbox == nil {
		opts.Sandbox = sandbox.New(sandbox.Options{})
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(nil)
	}
	if opts.Pricing.TokenCostPerMillion == 0 && opts.Pricing.PerTokenByModel == nil {
		opts.Pricing = ledger.DefaultPricing()
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = types.NewEstimateTokenizer()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = DefaultMaxContextTokens
	}
	if opts.MaxHistoryMessages <= 0 {
		opts.MaxHistoryMessages = DefaultMaxHistoryMessages
	}
	return &Executor{
		providers:  opts.Providers,
		sandbox:    opts.Sandbox,
		ledger:     opts.Ledger,
		pricing:    opts.Pricing,
		tokenizer:  opts.Tokenizer,
		logger:     opts.Logger.With(zap.String("component", "agent_executor")),
		maxTurns:   opts.MaxTurns,
		maxContext: opts.MaxContextTokens,
		maxHistory: opts.MaxHistoryMessages,
	}
}

// Request describes one agent execution.
type Request struct {
	RunID   string
	TaskID  string
	NodeID  string
	AgentID string

	Model        string
	Instructions string
	History      []types.Message
	Input        string
	Tools        []string

	MaxTokens   int
	Temperature float32
}

// Result is the outcome of one agent execution.
type Result struct {
	Response    string
	Messages    []types.Message
	ToolResults []types.ToolResult
	Usage       types.TokenUsage
	Turns       int
}

// Execute runs the conversation loop: call the model, run any requested
// tools through the sandbox, feed results back, repeat until the model stops
// requesting tools or a ceiling is hit. Sandbox errors propagate with their
// own codes so the engine can distinguish retryable failures; provider
// failures are wrapped as agent execution errors with the cause preserved.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	provider, err := e.providers.For(req.Model)
	if err != nil {
		return nil, err
	}

	history := trimHistory(req.History, e.tokenizer, e.maxHistory, e.maxContext)
	messages := make([]types.Message, 0, len(history)+2)
	if req.Instructions != "" {
		messages = append(messages, types.NewSystemMessage(req.Instructions))
	}
	messages = append(messages, history...)
	if req.Input != "" {
		messages = append(messages, types.NewUserMessage(req.Input))
	}

	toolSchemas := e.sandbox.Registry().Schemas(req.Tools)
	principal := sandbox.Principal{ID: req.AgentID, AllowedTools: req.Tools}

	result := &Result{}
	for turn := 0; turn < e.maxTurns; turn++ {
		if tokens := e.tokenizer.CountMessagesTokens(messages); tokens > e.maxContext {
			return nil, types.Errorf(types.ErrContextTooLong,
				"context length %d tokens exceeds limit %d", tokens, e.maxContext).WithNode(req.NodeID)
		}

		resp, err := provider.Chat(ctx, ChatRequest{
			Model:       req.Model,
			Messages:    messages,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			Tools:       toolSchemas,
		})
		if err != nil {
			return nil, e.wrapProviderError(req, provider, err)
		}

		result.Turns++
		e.recordUsage(req, resp.Usage)
		result.Usage.Add(resp.Usage)

		messages = append(messages, resp.Message)
		if len(resp.Message.ToolCalls) == 0 {
			result.Response = resp.Message.Content
			result.Messages = messages
			return result, nil
		}

		for _, call := range resp.Message.ToolCalls {
			toolResult, err := e.runTool(ctx, principal, call)
			if err != nil {
				return nil, err
			}
			result.ToolResults = append(result.ToolResults, toolResult)
			messages = append(messages, toolResult.ToMessage())
		}
	}

	return nil, types.Errorf(types.ErrContextTooLong,
		"agent did not produce a final response within %d turns", e.maxTurns).WithNode(req.NodeID)
}

// runTool executes one tool call through the sandbox. Retryable errors and
// policy violations propagate so the engine's retry logic sees them; only a
// successful invocation or a tool-level soft failure becomes a result.
func (e *Executor) runTool(ctx context.Context, principal sandbox.Principal, call types.ToolCall) (types.ToolResult, error) {
	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return types.ToolResult{}, types.Errorf(types.ErrToolValidation,
				"tool %q arguments are not valid json", call.Name).WithCause(err)
		}
	}

	start := time.Now()
	out, err := e.sandbox.Invoke(ctx, principal, call.Name, args)
	if err != nil {
		return types.ToolResult{}, err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return types.ToolResult{}, types.Errorf(types.ErrToolExecution,
			"tool %q output is not serializable", call.Name).WithCause(err)
	}
	return types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
		Result:     data,
		Duration:   time.Since(start),
	}, nil
}

// recordUsage books tokens and dollars against both the task and the run.
func (e *Executor) recordUsage(req Request, usage types.TokenUsage) {
	cost := usage.CostUSD
	if cost == 0 {
		cost = e.pricing.Cost(usage.TotalTokens, req.Model)
	}
	if req.TaskID != "" {
		e.ledger.Record(req.TaskID, usage.TotalTokens, cost)
	}
	if req.RunID != "" {
		e.ledger.Record(req.RunID, usage.TotalTokens, cost)
	}
	e.logger.Debug("model call recorded",
		zap.String("run_id", req.RunID),
		zap.String("task_id", req.TaskID),
		zap.String("model", req.Model),
		zap.Int("tokens", usage.TotalTokens),
		zap.Float64("cost_usd", cost),
	)
}

func (e *Executor) wrapProviderError(req Request, provider Provider, err error) error {
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	return types.Errorf(types.ErrAgentExecution,
		"model call failed for agent %s via %s", req.AgentID, provider.Name()).
		WithCause(err).WithNode(req.NodeID)
}
