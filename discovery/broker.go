package discovery

import (
	"context"
	"errors"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/logging"
)

// Dialer establishes a connection to a resolved endpoint. The websocket
// transport provides the production implementation; tests substitute a fake.
type Dialer func(ctx context.Context, ep Endpoint) error

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Broker drives the discovery and connection phases for a session. Connect
// resolves the target agent through the directory, publishes AgentDiscovered,
// dials the endpoint and publishes the ConnectionResult, so a session handler
// subscribed to the bus progresses from discovering through connecting to
// negotiating without ever talking to the broker directly.
type Broker struct {
	directory Directory
	bus       *bus.Bus
	dial      Dialer
	logger    logging.Logger
}

// NewBroker returns a Broker publishing on the given bus.
func NewBroker(directory Directory, b *bus.Bus, dial Dialer, optFns ...func(o *BrokerOptions)) *Broker {
	opts := BrokerOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Broker{directory: directory, bus: b, dial: dial, logger: opts.Logger}
}

// Connect locates and dials the given agent. Resolution misses surface as
// AGENT_NOT_FOUND and dial failures as AGENT_UNAVAILABLE, both on the error
// topic and as the returned error; a dial failure additionally publishes a
// failed ConnectionResult so the waiting session transitions to error.
func (bk *Broker) Connect(ctx context.Context, agentID string) error {
	ep, err := bk.directory.Resolve(ctx, agentID)
	if err != nil {
		code := core.CodeAgentNotFound
		if c := core.CodeOf(err); c != "" {
			code = c
		}
		bk.logger.Warn("agent resolution failed", "agent_id", agentID, "error", err)
		if pubErr := bk.bus.Publish(ctx, bus.Error{Code: code, Message: err.Error(), AgentID: agentID}); pubErr != nil {
			return errors.Join(err, pubErr)
		}
		return err
	}

	if err := bk.bus.Publish(ctx, bus.AgentDiscovered{AgentID: agentID}); err != nil {
		return err
	}
	bk.logger.Debug("agent discovered", "agent_id", agentID, "address", ep.Address)

	if err := bk.dial(ctx, ep); err != nil {
		wrapped := core.WrapProtocolError(core.CodeAgentUnavailable, "dial failed", err)
		bk.logger.Warn("dial failed", "agent_id", agentID, "address", ep.Address, "error", err)
		pubErr := bk.bus.Publish(ctx, bus.ConnectionResult{AgentID: agentID, Success: false, Reason: err.Error()})
		errPubErr := bk.bus.Publish(ctx, bus.Error{Code: core.CodeAgentUnavailable, Message: wrapped.Error(), AgentID: agentID})
		return errors.Join(wrapped, pubErr, errPubErr)
	}

	bk.logger.Info("agent connection established", "agent_id", agentID, "address", ep.Address)
	return bk.bus.Publish(ctx, bus.ConnectionResult{AgentID: agentID, Success: true})
}
