// Package feedmesh provides a high-level façade over the A2A protocol engine
// (event bus, sessions, discovery, audit) enabling rapid construction of
// agent-to-agent messaging systems. Most applications interact with this
// package by:
//  1. Creating a Mesh via New() (optionally overriding default in-memory services)
//  2. Attaching one or more local agent identities
//  3. Connecting to remote agents and exchanging messages through the sessions
//
// The façade delegates the protocol semantics to the session package while
// keeping setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a Redis
// directory, a Postgres audit log and a structured logger.
package feedmesh

import (
	"context"

	"github.com/hupe1980/feedmesh/audit"
	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/discovery"
	"github.com/hupe1980/feedmesh/logging"
	"github.com/hupe1980/feedmesh/session"
)

// Options configures the Mesh instance.
type Options struct {
	// Directory resolves agent ids to endpoints (defaults to in-memory).
	Directory discovery.Directory

	// AuditLog records every message crossing a session boundary (defaults
	// to in-memory). Set to nil explicitly to disable auditing.
	AuditLog audit.Log

	// Dialer establishes connections to resolved endpoints. Defaults to a
	// no-op dialer that treats every resolved endpoint as reachable, which
	// suits in-process setups; networked deployments supply the transport
	// client's dial.
	Dialer discovery.Dialer

	// SessionOptions are applied to every attached session.
	SessionOptions []func(o *session.Options)

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the bus, the session registry and
// the discovery and audit collaborators.
type Mesh struct {
	opts     Options
	bus      *bus.Bus
	registry *session.Registry
	broker   *discovery.Broker
	recorder *audit.Recorder
}

// New creates a new Mesh instance with optional overrides. Any unset service
// is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{
		Directory: discovery.NewInMemoryDirectory(),
		AuditLog:  audit.NewInMemoryLog(),
		Dialer:    func(ctx context.Context, ep discovery.Endpoint) error { return nil },
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	b := bus.New(func(o *bus.Options) {
		o.Logger = opts.Logger
	})

	m := &Mesh{
		opts:     opts,
		bus:      b,
		registry: session.NewRegistry(),
		broker: discovery.NewBroker(opts.Directory, b, opts.Dialer, func(o *discovery.BrokerOptions) {
			o.Logger = opts.Logger
		}),
	}
	if opts.AuditLog != nil {
		m.recorder = audit.NewRecorder(b, opts.AuditLog, func(o *audit.RecorderOptions) {
			o.Logger = opts.Logger
		})
	}
	return m
}

// Bus exposes the event bus for subscribers (pipelines, custom reactions).
func (m *Mesh) Bus() *bus.Bus { return m.bus }

// Registry exposes the session registry, owned by transport adapters.
func (m *Mesh) Registry() *session.Registry { return m.registry }

// Directory exposes the configured agent directory.
func (m *Mesh) Directory() discovery.Directory { return m.opts.Directory }

// AuditLog exposes the configured audit log, or nil when auditing is off.
func (m *Mesh) AuditLog() audit.Log { return m.opts.AuditLog }

// Attach creates a session for a local agent identity. The returned handler
// starts in the discovering state.
func (m *Mesh) Attach(agentID string) (*session.Handler, error) {
	return m.registry.Create(agentID, m.bus, m.opts.SessionOptions...)
}

// Detach removes and closes the session for the given agent.
func (m *Mesh) Detach(agentID string) bool {
	return m.registry.Remove(agentID)
}

// Connect resolves and dials a remote agent, driving any attached session
// waiting in the discovering state toward negotiation.
func (m *Mesh) Connect(ctx context.Context, agentID string) error {
	return m.broker.Connect(ctx, agentID)
}

// Close detaches all sessions and the audit recorder.
func (m *Mesh) Close() {
	m.registry.Each(func(h *session.Handler) {
		m.registry.Remove(h.AgentID())
	})
	if m.recorder != nil {
		m.recorder.Close()
	}
}
