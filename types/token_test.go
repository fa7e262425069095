package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenUsage_Add(t *testing.T) {
	t.Parallel()

	u := TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, CostUSD: 0.01}
	u.Add(TokenUsage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30, CostUSD: 0.02})

	assert.Equal(t, 30, u.PromptTokens)
	assert.Equal(t, 15, u.CompletionTokens)
	assert.Equal(t, 45, u.TotalTokens)
	assert.InDelta(t, 0.03, u.CostUSD, 1e-9)
}

func TestEstimateTokenizer_CountTokens(t *testing.T) {
	t.Parallel()

	tok := NewEstimateTokenizer()

	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Equal(t, 1, tok.CountTokens("hi"))
	assert.Equal(t, 4, tok.CountTokens("sixteen chars ok"))
}

func TestEstimateTokenizer_CountMessagesTokens(t *testing.T) {
	t.Parallel()

	tok := NewEstimateTokenizer()
	msgs := []Message{
		NewSystemMessage("you are a helpful assistant"),
		NewUserMessage("what is 2+2?"),
	}

	total := tok.CountMessagesTokens(msgs)
	assert.Equal(t, tok.CountMessageTokens(msgs[0])+tok.CountMessageTokens(msgs[1]), total)
	assert.Greater(t, total, 0)
}
