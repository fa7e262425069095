package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/flowforge/executor"
	"github.com/flowforge-ai/flowforge/types"
)

func testServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Provider) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil)
	return srv, p
}

func TestProvider_Chat(t *testing.T) {
	t.Parallel()

	var captured wireRequest
	var gotHeaders http.Header
	_, p := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(wireResponse{
			ID:         "msg_1",
			Model:      "claude-sonnet-4-20250514",
			Content:    []wireBlock{{Type: "text", Text: "hello "}, {Type: "text", Text: "there"}},
			StopReason: "end_turn",
			Usage:      &wireUsage{InputTokens: 12, OutputTokens: 3},
		})
	})

	resp, err := p.Chat(context.Background(), executor.ChatRequest{
		Model: "claude-sonnet-4-20250514",
		Messages: []types.Message{
			types.NewSystemMessage("be brief"),
			types.NewUserMessage("hi"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "test-key", gotHeaders.Get("x-api-key"))
	assert.Equal(t, apiVersion, gotHeaders.Get("anthropic-version"))

	// The system prompt travels in its own field, not as a message.
	assert.Equal(t, "be brief", captured.System)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.Equal(t, defaultMaxTokens, captured.MaxTokens)

	assert.Equal(t, "hello there", resp.Message.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestProvider_ChatToolRoundTrip(t *testing.T) {
	t.Parallel()

	var captured wireRequest
	_, p := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(wireResponse{
			Content: []wireBlock{{
				Type:  "tool_use",
				ID:    "call_1",
				Name:  "calculator",
				Input: json.RawMessage(`{"operation":"add","a":1,"b":2}`),
			}},
			StopReason: "tool_use",
		})
	})

	history := []types.Message{
		types.NewUserMessage("add 1 and 2"),
		types.NewAssistantMessage("").WithToolCalls([]types.ToolCall{{
			ID: "prev_call", Name: "calculator", Arguments: json.RawMessage(`{}`),
		}}),
		types.NewToolMessage("prev_call", "calculator", `{"result":3}`),
	}
	resp, err := p.Chat(context.Background(), executor.ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: history,
		Tools: []types.ToolSchema{{
			Name:       "calculator",
			Parameters: json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	// Tool result history is sent back as a user tool_result block.
	require.Len(t, captured.Messages, 3)
	assert.Equal(t, "tool_use", captured.Messages[1].Content[0].Type)
	assert.Equal(t, "user", captured.Messages[2].Role)
	assert.Equal(t, "tool_result", captured.Messages[2].Content[0].Type)
	assert.Equal(t, "prev_call", captured.Messages[2].Content[0].ToolUseID)
	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "calculator", captured.Tools[0].Name)

	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "calculator", resp.Message.ToolCalls[0].Name)
}

func TestProvider_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, types.ErrRateLimited, true},
		{"overloaded", statusOverloaded, types.ErrUpstreamError, true},
		{"server error", http.StatusInternalServerError, types.ErrUpstreamError, true},
		{"gateway timeout", http.StatusGatewayTimeout, types.ErrUpstreamTimeout, true},
		{"bad request", http.StatusBadRequest, types.ErrAgentExecution, false},
		{"unauthorized", http.StatusUnauthorized, types.ErrAgentExecution, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, p := testServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"type": "api_error", "message": "nope"},
				})
			})
			_, err := p.Chat(context.Background(), executor.ChatRequest{Model: "m"})
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, types.GetErrorCode(err))
			assert.Equal(t, tc.retryable, types.IsRetryable(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestProvider_Timeout(t *testing.T) {
	t.Parallel()

	_, p := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Chat(ctx, executor.ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamTimeout, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}
