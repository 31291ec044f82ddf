package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// messageEnvelope is the wire-level JSON shape of a Message. The content
// field is decoded lazily once the discriminant is known.
type messageEnvelope struct {
	ID             string          `json:"id"`
	Type           MessageType     `json:"type"`
	ConversationID string          `json:"conversationId"`
	FromAgent      string          `json:"fromAgent"`
	ToAgent        string          `json:"toAgent"`
	Timestamp      time.Time       `json:"timestamp"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Content        json.RawMessage `json:"content"`
}

// binaryContentWire is the wire shape of binary content. Data is base64
// encoded by encoding/json's []byte handling.
type binaryContentWire struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType"`
}

// controlContentWire is the wire shape of control content.
type controlContentWire struct {
	Action ControlAction  `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

// MarshalJSON encodes the message in its wire shape, serializing the content
// variant according to the type discriminant.
func (m Message) MarshalJSON() ([]byte, error) {
	env := messageEnvelope{
		ID:             m.ID,
		Type:           m.Type,
		ConversationID: m.ConversationID,
		FromAgent:      m.FromAgent,
		ToAgent:        m.ToAgent,
		Timestamp:      m.Timestamp,
		CorrelationID:  m.CorrelationID,
		Metadata:       m.Metadata,
	}

	var (
		raw []byte
		err error
	)
	switch c := m.Content.(type) {
	case TextContent:
		raw, err = json.Marshal(c.Text)
	case JSONContent:
		raw, err = json.Marshal(c.Data)
	case BinaryContent:
		raw, err = json.Marshal(binaryContentWire{Data: c.Data, ContentType: c.ContentType})
	case ControlContent:
		raw, err = json.Marshal(controlContentWire{Action: c.Action, Data: c.Data})
	case nil:
		raw = []byte("null")
	default:
		return nil, fmt.Errorf("unsupported content type %T", m.Content)
	}
	if err != nil {
		return nil, err
	}
	env.Content = raw

	return json.Marshal(env)
}

// UnmarshalJSON decodes the wire shape, selecting the content variant by the
// type discriminant. Structural mismatches (e.g. object content on a text
// message) fail here; field-level requirements are enforced by Validate.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	m.ID = env.ID
	m.Type = env.Type
	m.ConversationID = env.ConversationID
	m.FromAgent = env.FromAgent
	m.ToAgent = env.ToAgent
	m.Timestamp = env.Timestamp
	m.CorrelationID = env.CorrelationID
	m.Metadata = env.Metadata
	m.Content = nil

	if len(env.Content) == 0 || string(env.Content) == "null" {
		return nil
	}

	switch env.Type {
	case MessageTypeText:
		var text string
		if err := json.Unmarshal(env.Content, &text); err != nil {
			return fmt.Errorf("text content: %w", err)
		}
		m.Content = TextContent{Text: text}
	case MessageTypeJSON:
		var obj map[string]any
		if err := json.Unmarshal(env.Content, &obj); err != nil {
			return fmt.Errorf("json content: %w", err)
		}
		m.Content = JSONContent{Data: obj}
	case MessageTypeBinary:
		var bin binaryContentWire
		if err := json.Unmarshal(env.Content, &bin); err != nil {
			return fmt.Errorf("binary content: %w", err)
		}
		m.Content = BinaryContent{Data: bin.Data, ContentType: bin.ContentType}
	case MessageTypeControl:
		var ctl controlContentWire
		if err := json.Unmarshal(env.Content, &ctl); err != nil {
			return fmt.Errorf("control content: %w", err)
		}
		m.Content = ControlContent{Action: ctl.Action, Data: ctl.Data}
	default:
		// Unknown discriminant: leave content undecoded, Validate rejects it.
	}

	return nil
}

// DecodeMessage deserializes and validates a wire frame in one step. The
// returned error carries CodeMessageValidationFailed for both malformed JSON
// and schema violations, so transports can surface a single failure class.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, WrapProtocolError(CodeMessageValidationFailed, "malformed message frame", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
