package bus

import "github.com/hupe1980/feedmesh/core"

// Topic names a bus channel. Each topic carries exactly one payload type so
// subscribers decode nothing: the variant arrives already strongly typed.
type Topic string

const (
	// TopicAgentDiscovered announces that discovery located a peer agent.
	TopicAgentDiscovered Topic = "agent.discovered"
	// TopicConnectionResult reports the outcome of a connection attempt.
	TopicConnectionResult Topic = "connection.result"
	// TopicMessageOutgoing carries a full message for the transport to deliver.
	TopicMessageOutgoing Topic = "message.outgoing"
	// TopicMessageIncoming carries a validated inbound message for external
	// consumers (audit, feedback pipeline).
	TopicMessageIncoming Topic = "message.incoming"
	// TopicAgentConnected announces a session reaching its peer.
	TopicAgentConnected Topic = "agent.connected"
	// TopicAgentDisconnected announces session teardown.
	TopicAgentDisconnected Topic = "agent.disconnected"
	// TopicError carries protocol failures in the shared error taxonomy.
	TopicError Topic = "error"
)

// Event is the closed union of bus payloads. Concrete event types implement
// Topic, which doubles as the routing key for Publish.
type Event interface {
	Topic() Topic
}

// AgentDiscovered is published by the discovery collaborator when a peer has
// been located. Sessions in the discovering state react by moving to
// connecting with the announced agent as their pending peer.
type AgentDiscovered struct {
	AgentID string
}

// Topic implements Event.
func (AgentDiscovered) Topic() Topic { return TopicAgentDiscovered }

// ConnectionResult is published by the transport/discovery collaborator once
// a connection attempt to AgentID concludes. Reason is set on failure.
type ConnectionResult struct {
	AgentID string
	Success bool
	Reason  string
}

// Topic implements Event.
func (ConnectionResult) Topic() Topic { return TopicConnectionResult }

// MessageOutgoing carries a message the engine wants delivered to the peer.
// The transport adapter subscribes to serialize and write it to the wire.
type MessageOutgoing struct {
	Message core.Message
}

// Topic implements Event.
func (MessageOutgoing) Topic() Topic { return TopicMessageOutgoing }

// MessageIncoming carries a validated, dispatched inbound message. Published
// after per-type handler invocation regardless of whether a handler exists.
type MessageIncoming struct {
	Message core.Message
}

// Topic implements Event.
func (MessageIncoming) Topic() Topic { return TopicMessageIncoming }

// AgentConnected announces that a session bound its remote peer.
type AgentConnected struct {
	AgentID       string
	RemoteAgentID string
}

// Topic implements Event.
func (AgentConnected) Topic() Topic { return TopicAgentConnected }

// AgentDisconnected announces session teardown, locally or remotely
// initiated. Reason is optional peer- or caller-supplied context.
type AgentDisconnected struct {
	AgentID       string
	RemoteAgentID string
	Reason        string
}

// Topic implements Event.
func (AgentDisconnected) Topic() Topic { return TopicAgentDisconnected }

// Error carries a protocol failure. AgentID and SessionID identify the
// session that produced it when known.
type Error struct {
	Code      core.Code
	Message   string
	AgentID   string
	SessionID string
}

// Topic implements Event.
func (Error) Topic() Topic { return TopicError }
