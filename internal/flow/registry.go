package flow

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNilHandler signals an attempt to register a nil handler.
	ErrNilHandler = errors.New("flow: nil node handler")
	// ErrEmptyNodeType indicates a handler without a node type.
	ErrEmptyNodeType = errors.New("flow: node type is required")
	// ErrDuplicateNodeType indicates a node type registration conflict.
	ErrDuplicateNodeType = errors.New("flow: node type already registered")
)

// Handler executes one node type.
type Handler interface {
	// Type is the node type string used in saved graphs.
	Type() string
	// Decode turns the raw node data into the handler's typed, validated config.
	Decode(data map[string]any) (any, error)
	// Execute runs the node when the traversal reaches it.
	Execute(ctx context.Context, run *Run, node *Node) (Outcome, error)
}

// Resumer is implemented by handlers that wait for contact input.
type Resumer interface {
	Resume(ctx context.Context, run *Run, node *Node, in Input) (Outcome, error)
}

// Registry stores node handlers keyed by node type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

var defaultRegistry = NewBuiltinRegistry()

// DefaultRegistry returns the registry holding every built-in node type.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// NewBuiltinRegistry constructs a registry with all built-in node handlers.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, h := range builtinHandlers() {
		r.MustRegister(h)
	}
	return r
}

// Register adds a handler.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	typ := strings.TrimSpace(h.Type())
	if typ == "" {
		return ErrEmptyNodeType
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		return ErrDuplicateNodeType
	}
	r.handlers[typ] = h
	return nil
}

// MustRegister wraps Register and panics on error. Intended for bootstrap.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Get returns the handler for a node type.
func (r *Registry) Get(typ string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.TrimSpace(typ)]
	return h, ok
}

// Types lists registered node types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for typ := range r.handlers {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}
