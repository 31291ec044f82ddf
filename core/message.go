package core

import "time"

// MessageType discriminates the closed set of A2A message variants.
type MessageType string

const (
	// MessageTypeText carries a plain string payload.
	MessageTypeText MessageType = "text"
	// MessageTypeJSON carries an arbitrary structured mapping.
	MessageTypeJSON MessageType = "json"
	// MessageTypeBinary carries an opaque byte sequence plus a content-type
	// label. The engine never inspects it; it must round-trip unmodified.
	MessageTypeBinary MessageType = "binary"
	// MessageTypeControl carries protocol-internal handshake/teardown actions.
	MessageTypeControl MessageType = "control"
)

// AllMessageTypes returns the full closed message-type set in declaration order.
func AllMessageTypes() []MessageType {
	return []MessageType{MessageTypeText, MessageTypeJSON, MessageTypeBinary, MessageTypeControl}
}

// Valid reports whether t is one of the enumerated message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeJSON, MessageTypeBinary, MessageTypeControl:
		return true
	}
	return false
}

// ControlAction enumerates the sub-actions a control message may carry.
type ControlAction string

const (
	// ControlConnect initiates (or acknowledges remote initiation of) a session.
	ControlConnect ControlAction = "connect"
	// ControlDisconnect requests orderly session teardown.
	ControlDisconnect ControlAction = "disconnect"
	// ControlPing is a liveness probe answered with an ack.
	ControlPing ControlAction = "ping"
	// ControlAck acknowledges a previously received control message. The
	// acknowledged message id travels in data under the "forMessage" key.
	ControlAck ControlAction = "ack"
)

// Valid reports whether a is one of the four enumerated control actions.
func (a ControlAction) Valid() bool {
	switch a {
	case ControlConnect, ControlDisconnect, ControlPing, ControlAck:
		return true
	}
	return false
}

// Content is the polymorphic payload of a Message. Concrete content types
// implement the unexported isContent marker, keeping the union closed.
type Content interface{ isContent() }

// TextContent is the payload of a text message.
type TextContent struct {
	Text string
}

func (TextContent) isContent() {}

// JSONContent is the payload of a json message: an arbitrary structured mapping.
type JSONContent struct {
	Data map[string]any
}

func (JSONContent) isContent() {}

// BinaryContent is the payload of a binary message. Data is opaque to the
// engine's control logic and round-trips unmodified.
type BinaryContent struct {
	Data        []byte
	ContentType string
}

func (BinaryContent) isContent() {}

// ControlContent is the payload of a control message.
type ControlContent struct {
	Action ControlAction
	Data   map[string]any
}

func (ControlContent) isContent() {}

// Message is the A2A wire envelope: a tagged union discriminated by Type.
// All variants share the envelope fields; Content holds the variant payload.
// After construction a message should be treated as immutable.
type Message struct {
	ID             string
	Type           MessageType
	ConversationID string
	FromAgent      string
	ToAgent        string
	Timestamp      time.Time
	CorrelationID  string         // optional, correlates request/response pairs
	Metadata       map[string]any // optional, producer-provided
	Content        Content
}

// NewTextMessage constructs a text message with a fresh id and UTC timestamp.
func NewTextMessage(fromAgent, toAgent, conversationID, text string) Message {
	return Message{
		ID:             NewMessageID(),
		Type:           MessageTypeText,
		ConversationID: conversationID,
		FromAgent:      fromAgent,
		ToAgent:        toAgent,
		Timestamp:      time.Now().UTC(),
		Content:        TextContent{Text: text},
	}
}

// NewJSONMessage constructs a json message carrying a structured mapping.
func NewJSONMessage(fromAgent, toAgent, conversationID string, data map[string]any) Message {
	return Message{
		ID:             NewMessageID(),
		Type:           MessageTypeJSON,
		ConversationID: conversationID,
		FromAgent:      fromAgent,
		ToAgent:        toAgent,
		Timestamp:      time.Now().UTC(),
		Content:        JSONContent{Data: data},
	}
}

// NewBinaryMessage constructs a binary message with a content-type label.
func NewBinaryMessage(fromAgent, toAgent, conversationID string, data []byte, contentType string) Message {
	return Message{
		ID:             NewMessageID(),
		Type:           MessageTypeBinary,
		ConversationID: conversationID,
		FromAgent:      fromAgent,
		ToAgent:        toAgent,
		Timestamp:      time.Now().UTC(),
		Content:        BinaryContent{Data: data, ContentType: contentType},
	}
}

// NewControlMessage constructs a control message. Data may be nil for actions
// that carry no payload (e.g. a bare ping).
func NewControlMessage(fromAgent, toAgent, conversationID string, action ControlAction, data map[string]any) Message {
	return Message{
		ID:             NewMessageID(),
		Type:           MessageTypeControl,
		ConversationID: conversationID,
		FromAgent:      fromAgent,
		ToAgent:        toAgent,
		Timestamp:      time.Now().UTC(),
		Content:        ControlContent{Action: action, Data: data},
	}
}

// ControlActionOf returns the control action of m, or "" when m is not a
// (well-formed) control message.
func (m Message) ControlActionOf() ControlAction {
	cc, ok := m.Content.(ControlContent)
	if !ok {
		return ""
	}
	return cc.Action
}
