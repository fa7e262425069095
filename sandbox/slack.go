package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/flowforge-ai/flowforge/types"
)

var slackSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"channel": {"type": "string", "minLength": 1, "description": "Channel name, e.g. #support"},
		"text": {"type": "string", "minLength": 1, "maxLength": 40000},
		"username": {"type": "string", "description": "Bot display name override"},
		"icon_emoji": {"type": "string", "description": "Bot icon override, e.g. :robot_face:"}
	},
	"required": ["channel", "text"],
	"additionalProperties": false
}`)

// SlackTool posts a message to a Slack incoming webhook.
type SlackTool struct {
	webhookURL string
	client     *http.Client
}

// NewSlackTool creates the slack_post built-in for the given webhook URL.
// A nil client gets a default with a timeout.
func NewSlackTool(webhookURL string, client *http.Client) *SlackTool {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SlackTool{webhookURL: webhookURL, client: client}
}

func (t *SlackTool) Name() string { return "slack_post" }

func (t *SlackTool) Description() string {
	return "Posts a message to a Slack channel via incoming webhook"
}

func (t *SlackTool) ParameterSchema() json.RawMessage { return slackSchema }

// Execute posts the message.
func (t *SlackTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if t.webhookURL == "" {
		return nil, types.NewError(types.ErrToolExecution, "no slack webhook configured")
	}

	payload := map[string]any{
		"channel": args["channel"],
		"text":    args["text"],
	}
	if username, ok := args["username"].(string); ok {
		payload["username"] = username
	}
	if icon, ok := args["icon_emoji"].(string); ok {
		payload["icon_emoji"] = icon
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewError(types.ErrToolValidation, "slack payload is not serializable").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrToolExecution, "invalid slack webhook request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrToolTimeout, "slack post timed out").WithCause(err).WithRetryable(true)
		}
		return nil, types.NewError(types.ErrUpstreamError, "slack post failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 {
		return nil, types.Errorf(types.ErrUpstreamError, "slack returned %d: %s", resp.StatusCode, string(body)).WithRetryable(true)
	}
	if resp.StatusCode >= 400 {
		return nil, types.Errorf(types.ErrToolExecution, "slack rejected the message: %d %s", resp.StatusCode, string(body))
	}
	return map[string]any{
		"channel":   args["channel"],
		"ok":        true,
		"posted_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
