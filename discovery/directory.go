package discovery

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Endpoint is a resolvable agent location.
type Endpoint struct {
	AgentID string `json:"agentId"`
	Address string `json:"address"`
}

// Directory is the lookup service for agent endpoints.
type Directory interface {
	// Register makes the endpoint resolvable. Re-registering an agent
	// replaces its previous endpoint.
	Register(ctx context.Context, ep Endpoint) error

	// Resolve returns the endpoint for the given agent. A miss is reported
	// as an AGENT_NOT_FOUND protocol error.
	Resolve(ctx context.Context, agentID string) (Endpoint, error)

	// Deregister removes the agent from the directory. Removing an unknown
	// agent is a no-op.
	Deregister(ctx context.Context, agentID string) error

	// List returns all registered endpoints, sorted by agent id.
	List(ctx context.Context) ([]Endpoint, error)
}

// InMemoryDirectory is a process-local Directory, suitable for tests and
// single-node deployments.
type InMemoryDirectory struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// Compile-time check that InMemoryDirectory satisfies Directory.
var _ Directory = (*InMemoryDirectory)(nil)

// NewInMemoryDirectory returns an empty in-memory Directory.
func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{endpoints: make(map[string]Endpoint)}
}

func (d *InMemoryDirectory) Register(_ context.Context, ep Endpoint) error {
	if err := validateEndpoint(ep); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endpoints[ep.AgentID] = ep
	return nil
}

func (d *InMemoryDirectory) Resolve(_ context.Context, agentID string) (Endpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ep, ok := d.endpoints[agentID]
	if !ok {
		return Endpoint{}, notFoundError(agentID)
	}
	return ep, nil
}

func (d *InMemoryDirectory) Deregister(_ context.Context, agentID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.endpoints, agentID)
	return nil
}

func (d *InMemoryDirectory) List(_ context.Context) ([]Endpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Endpoint, 0, len(d.endpoints))
	for _, ep := range d.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// DefaultRegistrationTTL is how long a Redis-backed registration lives
// without renewal.
const DefaultRegistrationTTL = 5 * time.Minute
