package core

import "github.com/google/uuid"

// NewID generates a new unique identifier.
//
// Identifiers are UUID-based and never reused across distinct entities. The
// same generator backs message, conversation and session identifiers; the
// prefixed helpers below exist to keep logs and audit trails readable.
func NewID() string { return uuid.NewString() }

// NewMessageID generates an identifier for a single message.
func NewMessageID() string { return uuid.NewString() }

// NewConversationID generates an identifier scoping a logical exchange
// between two agents. Conversation ids are chosen by the initiating sender.
func NewConversationID() string { return "conv-" + uuid.NewString() }

// NewSessionID generates an identifier for a session lifecycle handler.
// It is created once per handler instance and echoed back to the peer on
// successful capability negotiation.
func NewSessionID() string { return "sess-" + uuid.NewString() }
