package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	err := NewError(ErrToolTimeout, "tool timed out")
	assert.Equal(t, "[TOOL_TIMEOUT] tool timed out", err.Error())

	withCause := NewError(ErrAgentExecution, "agent failed").WithCause(errors.New("boom"))
	assert.Equal(t, "[AGENT_EXECUTION] agent failed: boom", withCause.Error())
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewError(ErrUpstreamError, "provider unavailable").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable error", NewError(ErrToolTimeout, "timeout").WithRetryable(true), true},
		{"fatal error", NewError(ErrToolValidation, "bad args"), false},
		{"wrapped retryable", fmt.Errorf("task: %w", NewError(ErrRateLimited, "slow down").WithRetryable(true)), true},
		{"plain error", errors.New("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrCostCapExceeded, GetErrorCode(NewError(ErrCostCapExceeded, "over budget")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))

	wrapped := fmt.Errorf("run failed: %w", NewError(ErrDecisionNoMatch, "no edge matched"))
	assert.Equal(t, ErrDecisionNoMatch, GetErrorCode(wrapped))
}

func TestError_WithNode(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrToolExecution, "tool %s failed", "calculator").WithNode("action-1")
	require.Equal(t, "action-1", err.NodeID)
	assert.Equal(t, "action-1", GetNodeID(fmt.Errorf("wrap: %w", err)))
}
