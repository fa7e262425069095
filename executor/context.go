package executor

import (
	"github.com/flowforge-ai/flowforge/types"
)

// Defaults for context assembly.
const (
	DefaultMaxHistoryMessages = 20
	DefaultMaxContextTokens   = 100_000
	DefaultMaxTurns           = 10
)

// trimHistory drops the oldest history messages until both the message-count
// and token budgets hold. The system message is not part of history and is
// never trimmed. Tool-result messages at the cut point are dropped together
// with the assistant message that requested them, so the provider never sees
// an orphaned tool result.
func trimHistory(history []types.Message, tok types.Tokenizer, maxMessages, maxTokens int) []types.Message {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxHistoryMessages
	}
	if len(history) > maxMessages {
		history = history[len(history)-maxMessages:]
	}
	if maxTokens > 0 {
		for len(history) > 0 && tok.CountMessagesTokens(history) > maxTokens {
			history = history[1:]
		}
	}
	for len(history) > 0 && history[0].Role == types.RoleTool {
		history = history[1:]
	}
	return history
}
