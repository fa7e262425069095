package sandbox

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/flowforge-ai/flowforge/types"
)

// Tool is the single capability contract every tool implements. Built-in and
// user-defined tools are indistinguishable to the sandbox.
type Tool interface {
	// Name returns the unique tool name.
	Name() string
	// Description returns a human-readable summary for model prompts.
	Description() string
	// ParameterSchema returns the JSON Schema the tool's arguments must
	// satisfy.
	ParameterSchema() json.RawMessage
	// Execute runs the tool. Implementations must honor ctx cancellation.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds the tools available to a sandbox.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a name twice is an error so a rogue
// plugin cannot shadow a built-in.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return types.Errorf(types.ErrToolValidation, "tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// MustRegister adds a tool and panics on conflict. For init-time wiring of
// built-ins.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the schema descriptors of the named tools, for handing to
// a model provider. Unknown names are skipped.
func (r *Registry) Schemas(names []string) []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]types.ToolSchema, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		schemas = append(schemas, types.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return schemas
}
