package core

import "fmt"

// Validate checks the message against the schema of its declared type. It is
// called before any state mutation so the session engine never observes a
// partially-valid message. All failures carry CodeMessageValidationFailed.
//
// Envelope requirements (all variants): id, type, conversationId, fromAgent,
// toAgent and timestamp must be present. Per-variant requirements: text needs
// string content, json needs a structured mapping, binary needs a byte
// payload, control needs one of the four enumerated actions.
func (m Message) Validate() error {
	if m.ID == "" {
		return NewProtocolError(CodeMessageValidationFailed, "message id is required")
	}
	if !m.Type.Valid() {
		return NewProtocolError(CodeMessageValidationFailed, fmt.Sprintf("unknown message type %q", m.Type))
	}
	if m.ConversationID == "" {
		return NewProtocolError(CodeMessageValidationFailed, "conversationId is required")
	}
	if m.FromAgent == "" {
		return NewProtocolError(CodeMessageValidationFailed, "fromAgent is required")
	}
	if m.ToAgent == "" {
		return NewProtocolError(CodeMessageValidationFailed, "toAgent is required")
	}
	if m.Timestamp.IsZero() {
		return NewProtocolError(CodeMessageValidationFailed, "timestamp is required")
	}

	switch m.Type {
	case MessageTypeText:
		if _, ok := m.Content.(TextContent); !ok {
			return NewProtocolError(CodeMessageValidationFailed, "text message requires string content")
		}
	case MessageTypeJSON:
		c, ok := m.Content.(JSONContent)
		if !ok || c.Data == nil {
			return NewProtocolError(CodeMessageValidationFailed, "json message requires object content")
		}
	case MessageTypeBinary:
		c, ok := m.Content.(BinaryContent)
		if !ok || c.Data == nil {
			return NewProtocolError(CodeMessageValidationFailed, "binary message requires byte content")
		}
	case MessageTypeControl:
		c, ok := m.Content.(ControlContent)
		if !ok {
			return NewProtocolError(CodeMessageValidationFailed, "control message requires control content")
		}
		if !c.Action.Valid() {
			return NewProtocolError(CodeMessageValidationFailed, fmt.Sprintf("unknown control action %q", c.Action))
		}
	}

	return nil
}
