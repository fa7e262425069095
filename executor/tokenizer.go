package executor

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/flowforge-ai/flowforge/types"
)

// messageOverhead approximates the per-message framing tokens of chat APIs.
const messageOverhead = 4

// TiktokenTokenizer counts tokens with a real BPE encoding. Unknown models
// fall back to cl100k_base.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer creates a tokenizer for the given model. It returns
// an error only when even the fallback encoding cannot be loaded, e.g. when
// the embedded encoding data is unavailable.
func NewTiktokenTokenizer(model string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// CountTokens counts tokens in text.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// CountMessageTokens counts tokens in one message including tool calls.
func (t *TiktokenTokenizer) CountMessageTokens(msg types.Message) int {
	tokens := messageOverhead
	tokens += t.CountTokens(msg.Content)
	if msg.Name != "" {
		tokens += t.CountTokens(msg.Name)
	}
	for _, tc := range msg.ToolCalls {
		tokens += t.CountTokens(tc.Name)
		tokens += t.CountTokens(string(tc.Arguments))
	}
	return tokens
}

// CountMessagesTokens counts tokens across a message slice.
func (t *TiktokenTokenizer) CountMessagesTokens(msgs []types.Message) int {
	total := 0
	for _, msg := range msgs {
		total += t.CountMessageTokens(msg)
	}
	return total
}

// TokenizerFor returns the best available tokenizer for a model: tiktoken
// when its encoding data loads, the character-ratio estimate otherwise.
func TokenizerFor(model string) types.Tokenizer {
	if tok, err := NewTiktokenTokenizer(model); err == nil {
		return tok
	}
	return types.NewEstimateTokenizer()
}
