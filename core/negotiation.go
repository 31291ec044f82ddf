package core

// NegotiationRequest is a peer's offer: the capabilities and message types it
// wants to use on the session. AgentID names the requesting remote agent.
type NegotiationRequest struct {
	AgentID               string        `json:"agentId"`
	Capabilities          []Capability  `json:"capabilities"`
	SupportedMessageTypes []MessageType `json:"supportedMessageTypes,omitempty"`
}

// NegotiationError carries the rejection reason of a failed negotiation.
type NegotiationError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// NegotiationResponse is the outcome of a negotiation attempt. On acceptance
// Capabilities and SupportedMessageTypes hold the agreed intersections and
// SessionID echoes the full session identifier so the peer can correlate
// subsequent control acks. On rejection Error holds the reason and the agreed
// sets are empty.
type NegotiationResponse struct {
	Accepted              bool              `json:"accepted"`
	Capabilities          []Capability      `json:"capabilities"`
	SupportedMessageTypes []MessageType     `json:"supportedMessageTypes,omitempty"`
	SessionID             string            `json:"sessionId,omitempty"`
	Error                 *NegotiationError `json:"error,omitempty"`
}

// LocalOffer is the locally supported capability and message-type sets a
// session negotiates against.
type LocalOffer struct {
	Capabilities []Capability
	MessageTypes []MessageType
}

// Negotiate computes the accept/reject decision for a negotiation request
// against a local offer. Pure: identical inputs yield identical results, and
// it may be called concurrently from any number of sessions.
//
// Acceptance is transactional: either both intersections are non-empty and
// the response carries them plus the session id, or the request is rejected
// with NO_MATCHING_CAPABILITIES and empty sets. An empty message-type
// intersection rejects even when capabilities overlap; the two sets are
// negotiated symmetrically. A request that omits message types is treated as
// requesting every locally supported type.
func Negotiate(local LocalOffer, req NegotiationRequest, sessionID string) NegotiationResponse {
	accepted := IntersectCapabilities(local.Capabilities, req.Capabilities)
	if len(accepted) == 0 {
		return NegotiationResponse{
			Accepted:     false,
			Capabilities: []Capability{},
			Error: &NegotiationError{
				Code:    CodeNoMatchingCapabilities,
				Message: "no matching capabilities",
			},
		}
	}

	requestedTypes := req.SupportedMessageTypes
	if len(requestedTypes) == 0 {
		requestedTypes = local.MessageTypes
	}
	acceptedTypes := IntersectMessageTypes(local.MessageTypes, requestedTypes)
	if len(acceptedTypes) == 0 {
		return NegotiationResponse{
			Accepted:     false,
			Capabilities: []Capability{},
			Error: &NegotiationError{
				Code:    CodeNoMatchingCapabilities,
				Message: "no matching message types",
			},
		}
	}

	return NegotiationResponse{
		Accepted:              true,
		Capabilities:          accepted,
		SupportedMessageTypes: acceptedTypes,
		SessionID:             sessionID,
	}
}
