package session

import (
	"fmt"
	"sync"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
)

// Registry tracks live session handlers keyed by local agent id. It is owned
// by the transport adapter, which creates a handler when an agent connection
// is authenticated and removes it when the connection closes.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]*Handler)}
}

// Create constructs and registers a handler for the given agent. Fails with
// INVALID_AGENT when the agent id is empty or a session already exists for
// it; a second connection for the same identity must first remove the old
// session.
func (r *Registry) Create(agentID string, b *bus.Bus, optFns ...func(o *Options)) (*Handler, error) {
	if agentID == "" {
		return nil, core.NewProtocolError(core.CodeInvalidAgent, "agent id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[agentID]; ok {
		return nil, core.NewProtocolError(core.CodeInvalidAgent,
			fmt.Sprintf("session already exists for agent %q", agentID))
	}

	h := NewHandler(agentID, b, optFns...)
	r.handlers[agentID] = h
	return h, nil
}

// Lookup returns the handler for the given agent, if any.
func (r *Registry) Lookup(agentID string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[agentID]
	return h, ok
}

// Remove detaches and forgets the handler for the given agent. Returns false
// when no session exists.
func (r *Registry) Remove(agentID string) bool {
	r.mu.Lock()
	h, ok := r.handlers[agentID]
	delete(r.handlers, agentID)
	r.mu.Unlock()

	if ok {
		h.Close()
	}
	return ok
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Each calls fn for every registered handler. The snapshot is taken under the
// read lock; fn runs outside it.
func (r *Registry) Each(fn func(h *Handler)) {
	r.mu.RLock()
	snapshot := make([]*Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()

	for _, h := range snapshot {
		fn(h)
	}
}
