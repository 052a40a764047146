// Package ledger executes commands against the ledger state one at a time,
// with snapshot/rollback so every command is atomic.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/landvn/landledger/core"
)

// Handler is the function signature every command module must implement.
type Handler func(ctx *Context, payload json.RawMessage) error

// Registry maps CmdTypes to Handlers. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.CmdType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.CmdType]Handler)}
}

// Register associates typ with h. Panics on duplicate registration.
func (r *Registry) Register(typ core.CmdType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("ledger: handler already registered for CmdType %q", typ))
	}
	r.handlers[typ] = h
}

// Execute dispatches payload to the handler registered for typ.
func (r *Registry) Execute(typ core.CmdType, ctx *Context, payload json.RawMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[typ]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ledger: no handler registered for CmdType %q", typ)
	}
	return h(ctx, payload)
}

// globalRegistry is the package-level singleton that modules register into.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry.
// Module init() functions call this to self-register.
func Register(typ core.CmdType, h Handler) {
	globalRegistry.Register(typ, h)
}
