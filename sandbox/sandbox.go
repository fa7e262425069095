package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/types"
)

// Default resource limits, matching the sandbox's shipped configuration.
const (
	DefaultMaxExecutionTime = 30 * time.Second
	DefaultMaxOutputBytes   = 100 * 1024
	DefaultRateMaxCalls     = 60
	DefaultRateWindow       = time.Minute
)

// Principal identifies the caller of a tool and the tools it may use. The
// engine derives one per agent node from its configured tool list.
type Principal struct {
	ID           string
	AllowedTools []string
}

// mayUse reports whether the principal's tool list includes name.
func (p Principal) mayUse(name string) bool {
	for _, t := range p.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// Options configures a Sandbox. Zero values fall back to defaults.
type Options struct {
	Registry         *Registry
	Limiter          Limiter
	AllowedHosts     []string
	MaxExecutionTime time.Duration
	MaxOutputBytes   int
	Logger           *zap.Logger
}

// Sandbox executes tool calls under permission, validation, rate-limit,
// network, and resource controls.
type Sandbox struct {
	registry *Registry
	limiter  Limiter
	guard    *URLGuard

	maxExecutionTime time.Duration
	maxOutputBytes   int

	logger *zap.Logger

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// New creates a sandbox.
func New(opts Options) *Sandbox {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Limiter == nil {
		opts.Limiter = NewLocalLimiter(DefaultRateMaxCalls, DefaultRateWindow)
	}
	if opts.AllowedHosts == nil {
		opts.AllowedHosts = DefaultAllowedHosts
	}
	if opts.MaxExecutionTime <= 0 {
		opts.MaxExecutionTime = DefaultMaxExecutionTime
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sandbox{
		registry:         opts.Registry,
		limiter:          opts.Limiter,
		guard:            NewURLGuard(opts.AllowedHosts),
		maxExecutionTime: opts.MaxExecutionTime,
		maxOutputBytes:   opts.MaxOutputBytes,
		logger:           opts.Logger.With(zap.String("component", "tool_sandbox")),
		schemas:          make(map[string]*jsonschema.Schema),
	}
}

// Registry returns the sandbox's tool registry.
func (s *Sandbox) Registry() *Registry {
	return s.registry
}

// Invoke executes one tool call through the full control pipeline. Errors
// carry a code classifying them as retryable (rate limit, timeout) or fatal
// (permission, validation, network policy).
func (s *Sandbox) Invoke(ctx context.Context, principal Principal, toolName string, args map[string]any) (any, error) {
	tool, ok := s.registry.Get(toolName)
	if !ok {
		return nil, types.Errorf(types.ErrToolValidation, "unknown tool %q", toolName)
	}

	if !principal.mayUse(toolName) {
		return nil, types.Errorf(types.ErrToolForbidden, "tool %q not permitted for %s", toolName, principal.ID)
	}

	if err := s.validateArgs(tool, args); err != nil {
		return nil, err
	}

	if rawURL, ok := args["url"].(string); ok {
		if err := s.guard.Check(rawURL); err != nil {
			return nil, err
		}
	}

	allowed, err := s.limiter.Allow(ctx, principal.ID+":"+toolName)
	if err != nil {
		return nil, types.Errorf(types.ErrUpstreamError, "rate limiter unavailable").WithCause(err).WithRetryable(true)
	}
	if !allowed {
		return nil, types.Errorf(types.ErrRateLimited, "tool %q rate limit exceeded for %s", toolName, principal.ID).WithRetryable(true)
	}

	start := time.Now()
	result, err := s.executeWithTimeout(ctx, tool, args)
	elapsed := time.Since(start)

	if err != nil {
		s.logger.Warn("tool call failed",
			zap.String("tool", toolName),
			zap.String("principal", principal.ID),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.checkOutputSize(toolName, result); err != nil {
		return nil, err
	}

	s.logger.Debug("tool call completed",
		zap.String("tool", toolName),
		zap.String("principal", principal.ID),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// validateArgs checks args against the tool's parameter schema. The compiled
// schema is cached per tool name.
func (s *Sandbox) validateArgs(tool Tool, args map[string]any) error {
	schema, err := s.compiledSchema(tool)
	if err != nil {
		return err
	}
	if args == nil {
		args = map[string]any{}
	}
	// The validator wants plain decoded JSON values, so round-trip the args.
	data, err := json.Marshal(args)
	if err != nil {
		return types.Errorf(types.ErrToolValidation, "arguments for %q are not serializable", tool.Name()).WithCause(err)
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return types.Errorf(types.ErrToolValidation, "arguments for %q are not valid json", tool.Name()).WithCause(err)
	}
	if err := schema.Validate(decoded); err != nil {
		return types.Errorf(types.ErrToolValidation, "invalid arguments for tool %q", tool.Name()).WithCause(err)
	}
	return nil
}

func (s *Sandbox) compiledSchema(tool Tool) (*jsonschema.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if schema, ok := s.schemas[tool.Name()]; ok {
		return schema, nil
	}
	schema, err := jsonschema.CompileString(tool.Name()+".schema.json", string(tool.ParameterSchema()))
	if err != nil {
		return nil, types.Errorf(types.ErrToolValidation, "tool %q has an invalid parameter schema", tool.Name()).WithCause(err)
	}
	s.schemas[tool.Name()] = schema
	return schema, nil
}

// executeWithTimeout runs the tool under the sandbox's wall-clock cap. The
// tool goroutine is handed the capped context; a tool that ignores it leaks
// until it returns, but the caller is unblocked at the deadline.
func (s *Sandbox) executeWithTimeout(ctx context.Context, tool Tool, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.maxExecutionTime)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Execute(ctx, args)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			var typed *types.Error
			if errors.As(out.err, &typed) {
				return nil, out.err
			}
			return nil, types.Errorf(types.ErrToolExecution, "tool %q failed", tool.Name()).WithCause(out.err)
		}
		return out.result, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, types.Errorf(types.ErrToolExecution, "tool %q cancelled", tool.Name()).WithCause(ctx.Err())
		}
		return nil, types.Errorf(types.ErrToolTimeout, "tool %q timed out after %s", tool.Name(), s.maxExecutionTime).WithRetryable(true)
	}
}

func (s *Sandbox) checkOutputSize(toolName string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return types.Errorf(types.ErrToolExecution, "tool %q returned unserializable output", toolName).WithCause(err)
	}
	if len(data) > s.maxOutputBytes {
		return types.Errorf(types.ErrToolExecution, "tool %q output exceeded size limit: %d bytes > %d bytes", toolName, len(data), s.maxOutputBytes)
	}
	return nil
}
