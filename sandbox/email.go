package sandbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge-ai/flowforge/types"
)

var emailSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"to": {
			"oneOf": [
				{"type": "string", "format": "email"},
				{"type": "array", "items": {"type": "string", "format": "email"}, "minItems": 1}
			],
			"description": "Recipient address or addresses"
		},
		"subject": {"type": "string", "minLength": 1, "maxLength": 500},
		"body": {"type": "string", "minLength": 1},
		"cc": {"type": "array", "items": {"type": "string", "format": "email"}},
		"reply_to": {"type": "string", "format": "email"},
		"format": {"type": "string", "enum": ["text", "html"], "default": "text"}
	},
	"required": ["to", "subject", "body"],
	"additionalProperties": false
}`)

// EmailMessage is the normalized message handed to an email Sender.
type EmailMessage struct {
	To      []string
	CC      []string
	ReplyTo string
	Subject string
	Body    string
	Format  string
}

// EmailSender delivers a message through a mail provider. Implementations
// live at the integration boundary; tests inject a recorder.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) (messageID string, err error)
}

// EmailTool queues an outbound email via the configured sender.
type EmailTool struct {
	sender EmailSender
}

// NewEmailTool creates the email_send built-in.
func NewEmailTool(sender EmailSender) *EmailTool {
	return &EmailTool{sender: sender}
}

func (t *EmailTool) Name() string { return "email_send" }

func (t *EmailTool) Description() string {
	return "Sends an email through the configured mail provider"
}

func (t *EmailTool) ParameterSchema() json.RawMessage { return emailSchema }

// Execute normalizes the arguments and hands the message to the sender.
func (t *EmailTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if t.sender == nil {
		return nil, types.NewError(types.ErrToolExecution, "no email sender configured")
	}

	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)
	msg := EmailMessage{
		Subject: subject,
		Body:    body,
		Format:  "text",
	}
	switch to := args["to"].(type) {
	case string:
		msg.To = []string{to}
	case []any:
		for _, v := range to {
			if s, ok := v.(string); ok {
				msg.To = append(msg.To, s)
			}
		}
	}
	if cc, ok := args["cc"].([]any); ok {
		for _, v := range cc {
			if s, ok := v.(string); ok {
				msg.CC = append(msg.CC, s)
			}
		}
	}
	if replyTo, ok := args["reply_to"].(string); ok {
		msg.ReplyTo = replyTo
	}
	if format, ok := args["format"].(string); ok {
		msg.Format = format
	}

	id, err := t.sender.Send(ctx, msg)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "email delivery failed").WithCause(err).WithRetryable(true)
	}
	if id == "" {
		id = uuid.NewString()
	}
	return map[string]any{
		"message_id": id,
		"recipients": len(msg.To) + len(msg.CC),
		"queued_at":  time.Now().UTC().Format(time.RFC3339),
	}, nil
}
