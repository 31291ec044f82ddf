package core

// Capability is a named feature an agent declares support for. The set is
// closed: negotiation only ever operates on the enumerated values below.
type Capability string

const (
	// CapabilityMessaging covers plain message exchange (text/json/binary).
	CapabilityMessaging Capability = "messaging"
	// CapabilityStreaming covers incremental delivery of large payloads.
	CapabilityStreaming Capability = "streaming"
	// CapabilityFileTransfer covers binary file exchange.
	CapabilityFileTransfer Capability = "file_transfer"
	// CapabilityEventSubscription covers push-style event delivery.
	CapabilityEventSubscription Capability = "event_subscription"
	// CapabilityAgentDiscovery covers directory lookups of other agents.
	CapabilityAgentDiscovery Capability = "agent_discovery"
	// CapabilityTaskExecution covers delegated task execution.
	CapabilityTaskExecution Capability = "task_execution"
)

// AllCapabilities returns the full closed capability set in declaration order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityMessaging,
		CapabilityStreaming,
		CapabilityFileTransfer,
		CapabilityEventSubscription,
		CapabilityAgentDiscovery,
		CapabilityTaskExecution,
	}
}

// Valid reports whether c is one of the enumerated capabilities.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityMessaging, CapabilityStreaming, CapabilityFileTransfer,
		CapabilityEventSubscription, CapabilityAgentDiscovery, CapabilityTaskExecution:
		return true
	}
	return false
}

// IntersectCapabilities computes supported ∩ requested, preserving the order
// of the requested slice so a negotiation response echoes capabilities in the
// order the peer asked for them. Unknown values in requested are dropped.
// Pure and safe for concurrent use.
func IntersectCapabilities(supported, requested []Capability) []Capability {
	have := make(map[Capability]struct{}, len(supported))
	for _, c := range supported {
		have[c] = struct{}{}
	}
	var out []Capability
	seen := make(map[Capability]struct{}, len(requested))
	for _, c := range requested {
		if !c.Valid() {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		if _, ok := have[c]; ok {
			out = append(out, c)
			seen[c] = struct{}{}
		}
	}
	return out
}

// IntersectMessageTypes computes supported ∩ requested message types with the
// same ordering and de-duplication rules as IntersectCapabilities.
func IntersectMessageTypes(supported, requested []MessageType) []MessageType {
	have := make(map[MessageType]struct{}, len(supported))
	for _, t := range supported {
		have[t] = struct{}{}
	}
	var out []MessageType
	seen := make(map[MessageType]struct{}, len(requested))
	for _, t := range requested {
		if !t.Valid() {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		if _, ok := have[t]; ok {
			out = append(out, t)
			seen[t] = struct{}{}
		}
	}
	return out
}
