package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler performs the actual effect for one operation type, typically a
// remote write. Handlers must tolerate at-least-once delivery: a handler that
// partially succeeds and then fails will be retried from the start.
type Handler func(ctx context.Context, payload json.RawMessage) error

// ErrDuplicateHandler indicates a second registration for an operation type.
var ErrDuplicateHandler = fmt.Errorf("handler already registered")

// Registry maps operation types to their handlers. Registration is explicit:
// duplicates are rejected rather than silently replaced, and overrides go
// through Override so replacement shows up at the call site.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to an operation type. It fails when the type is
// already bound.
func (r *Registry) Register(opType string, handler Handler) error {
	if opType == "" {
		return fmt.Errorf("operation type must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler for %q must not be nil", opType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[opType]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, opType)
	}
	r.handlers[opType] = handler
	return nil
}

// Override binds a handler to an operation type, replacing any existing
// binding.
func (r *Registry) Override(opType string, handler Handler) error {
	if opType == "" {
		return fmt.Errorf("operation type must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler for %q must not be nil", opType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[opType] = handler
	return nil
}

// Resolve returns the handler bound to an operation type.
func (r *Registry) Resolve(opType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[opType]
	return handler, ok
}

// Types lists every registered operation type.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for opType := range r.handlers {
		types = append(types, opType)
	}
	return types
}
