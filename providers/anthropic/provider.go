// Package anthropic implements an executor.Provider against the Anthropic
// Messages API. The API differs from the OpenAI shape in three ways that this
// adapter absorbs: authentication uses the x-api-key header, the system
// prompt travels in its own request field, and tool results are sent back as
// user messages carrying tool_result content blocks.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/executor"
	"github.com/flowforge-ai/flowforge/types"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"

	// The API returns 529 when the model is overloaded.
	statusOverloaded = 529
)

// Config configures the provider.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Provider calls the Anthropic Messages API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "anthropic_provider")),
	}
}

// Name identifies the provider for logs.
func (p *Provider) Name() string { return "anthropic" }

// Wire types for the Messages API.

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	ID         string      `json:"id"`
	Model      string      `json:"model"`
	Content    []wireBlock `json:"content"`
	StopReason string      `json:"stop_reason"`
	Usage      *wireUsage  `json:"usage,omitempty"`
}

type wireError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Chat performs one model call.
func (p *Provider) Chat(ctx context.Context, req executor.ChatRequest) (*executor.ChatResponse, error) {
	system, messages := convertMessages(req.Messages)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		// The API rejects requests without max_tokens.
		maxTokens = defaultMaxTokens
	}

	body := wireRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Tools:       convertTools(req.Tools),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.Errorf(types.ErrAgentExecution, "encoding request for model %s", req.Model).WithCause(err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.Errorf(types.ErrAgentExecution, "building request for %s", endpoint).WithCause(err)
	}
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.Errorf(types.ErrUpstreamTimeout, "model call timed out").WithCause(err).WithRetryable(true)
		}
		return nil, types.Errorf(types.ErrUpstreamError, "model call failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, mapAPIError(resp.StatusCode, readErrMsg(resp.Body))
	}

	var decoded wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, types.Errorf(types.ErrUpstreamError, "decoding model response").WithCause(err).WithRetryable(true)
	}
	return toChatResponse(decoded), nil
}

// convertMessages translates the conversation to wire shape: the system
// prompt is lifted out, tool results become user tool_result blocks, and
// assistant tool calls become tool_use blocks.
func convertMessages(msgs []types.Message) (string, []wireMessage) {
	var system string
	out := make([]wireMessage, 0, len(msgs))

	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem:
			system = m.Content
		case types.RoleTool:
			out = append(out, wireMessage{
				Role: "user",
				Content: []wireBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		default:
			wm := wireMessage{Role: string(m.Role)}
			if m.Content != "" {
				wm.Content = append(wm.Content, wireBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				wm.Content = append(wm.Content, wireBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			if len(wm.Content) > 0 {
				out = append(out, wm)
			}
		}
	}
	return system, out
}

func convertTools(tools []types.ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return out
}

func toChatResponse(wr wireResponse) *executor.ChatResponse {
	msg := types.Message{Role: types.RoleAssistant, Timestamp: time.Now()}
	for _, block := range wr.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}

	resp := &executor.ChatResponse{Message: msg, StopReason: wr.StopReason}
	if wr.Usage != nil {
		resp.Usage = types.TokenUsage{
			PromptTokens:     wr.Usage.InputTokens,
			CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		}
	}
	return resp
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var decoded wireError
	if err := json.Unmarshal(data, &decoded); err == nil && decoded.Error.Message != "" {
		return fmt.Sprintf("%s (type: %s)", decoded.Error.Message, decoded.Error.Type)
	}
	return string(data)
}

func mapAPIError(status int, msg string) *types.Error {
	switch {
	case status == http.StatusTooManyRequests:
		return types.Errorf(types.ErrRateLimited, "model rate limited: %s", msg).WithRetryable(true)
	case status == statusOverloaded:
		return types.Errorf(types.ErrUpstreamError, "model overloaded: %s", msg).WithRetryable(true)
	case status == http.StatusGatewayTimeout:
		return types.Errorf(types.ErrUpstreamTimeout, "model gateway timeout: %s", msg).WithRetryable(true)
	case status >= 500:
		return types.Errorf(types.ErrUpstreamError, "model call failed with status %d: %s", status, msg).WithRetryable(true)
	default:
		return types.Errorf(types.ErrAgentExecution, "model call rejected with status %d: %s", status, msg)
	}
}
