package core

import (
	"errors"
	"fmt"
)

// Code identifies a protocol-level failure class. The taxonomy is shared by
// the session engine and its collaborators (discovery, transport) so every
// component reports failures in the same vocabulary.
type Code string

const (
	// CodeInvalidAgent indicates a negotiation or message addressed by/to an
	// agent id inconsistent with the session's bound peer.
	CodeInvalidAgent Code = "INVALID_AGENT"
	// CodeNoMatchingCapabilities indicates an empty negotiation intersection.
	CodeNoMatchingCapabilities Code = "NO_MATCHING_CAPABILITIES"
	// CodeMessageValidationFailed indicates an inbound payload that does not
	// conform to any known message-type schema.
	CodeMessageValidationFailed Code = "MESSAGE_VALIDATION_FAILED"
	// CodeConnectionFailed is surfaced by the transport/discovery collaborator
	// when establishing a connection to a peer fails.
	CodeConnectionFailed Code = "CONNECTION_FAILED"
	// CodeConnectionTimeout is raised when a pending connect/negotiate phase
	// exceeds its watchdog deadline.
	CodeConnectionTimeout Code = "CONNECTION_TIMEOUT"
	// CodeAgentNotFound is surfaced by discovery when no directory entry
	// exists for the requested agent.
	CodeAgentNotFound Code = "AGENT_NOT_FOUND"
	// CodeAgentUnavailable is surfaced by discovery when an agent is known
	// but cannot currently be reached.
	CodeAgentUnavailable Code = "AGENT_UNAVAILABLE"
	// CodeProcessingError indicates an unexpected internal fault (e.g. a
	// registered message handler panicking) recovered at a dispatch boundary.
	CodeProcessingError Code = "PROCESSING_ERROR"
)

// ProtocolError is the concrete error type carrying a taxonomy code. Expected
// protocol failures are represented as values of this type (or as typed
// results such as NegotiationResponse) rather than ad-hoc error strings.
type ProtocolError struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *ProtocolError) Unwrap() error { return e.Cause }

// Is matches any *ProtocolError with the same code, enabling
// errors.Is(err, &ProtocolError{Code: CodeAgentNotFound}).
func (e *ProtocolError) Is(target error) bool {
	var pe *ProtocolError
	if !errors.As(target, &pe) {
		return false
	}
	return e.Code == pe.Code
}

// NewProtocolError constructs a ProtocolError with the given code and message.
func NewProtocolError(code Code, message string) *ProtocolError {
	return &ProtocolError{Code: code, Message: message}
}

// WrapProtocolError constructs a ProtocolError wrapping an underlying cause.
func WrapProtocolError(code Code, message string, cause error) *ProtocolError {
	return &ProtocolError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the taxonomy code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
