// Package functions invokes named serverless-style functions. Custom tools
// and agent runs resolve their function name through an Invoker.
package functions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentplate/agentplate/pkg/schema"
)

// Handler is a registered in-process function.
type Handler func(ctx context.Context, input map[string]any) (map[string]any, error)

// Invoker executes a named function with a JSON document payload.
type Invoker interface {
	Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error)
}

// Registry is an in-process Invoker backed by registered handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

var _ Invoker = (*Registry)(nil)

// NewRegistry returns an empty function registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler under the given name. Re-registering a name
// replaces the previous handler.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "function name is required")
	}
	if h == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "function %q has no handler", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return nil
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Invoke(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "function %q not registered", name)
	}

	output, err := h(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", name, err)
	}
	return output, nil
}
