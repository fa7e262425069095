package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Structural error codes. Runs carrying these never start.
const (
	ErrGraphInvalid    ErrorCode = "GRAPH_INVALID"
	ErrWorkflowInvalid ErrorCode = "WORKFLOW_INVALID"
)

// Task error codes, retryable class. The engine re-attempts these up to the
// configured limit before escalating to a terminal failure.
const (
	ErrToolTimeout     ErrorCode = "TOOL_TIMEOUT"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
)

// Task error codes, fatal class. Never retried.
const (
	ErrToolValidation    ErrorCode = "TOOL_VALIDATION"
	ErrToolForbidden     ErrorCode = "TOOL_FORBIDDEN"
	ErrToolExecution     ErrorCode = "TOOL_EXECUTION"
	ErrContextTooLong    ErrorCode = "CONTEXT_TOO_LONG"
	ErrCostCapExceeded   ErrorCode = "COST_CAP_EXCEEDED"
	ErrDecisionAmbiguous ErrorCode = "DECISION_AMBIGUOUS"
	ErrDecisionNoMatch   ErrorCode = "DECISION_NO_MATCH"
	ErrAgentExecution    ErrorCode = "AGENT_EXECUTION"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrRunNotFound       ErrorCode = "RUN_NOT_FOUND"
	ErrHumanTimeout      ErrorCode = "HUMAN_TIMEOUT"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error is a structured error with a code, retryability, and an optional
// underlying cause. All engine components return *Error at their boundaries
// so the workflow engine can classify failures without string matching.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	NodeID    string    `json:"node_id,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithNode attaches the failing node id.
func (e *Error) WithNode(nodeID string) *Error {
	e.NodeID = nodeID
	return e
}

// IsRetryable reports whether err (or any error it wraps) is a retryable
// *Error. Unknown error types are treated as non-retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetNodeID extracts the failing node id from an error, if any.
func GetNodeID(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.NodeID
	}
	return ""
}
