package session

// State is a session lifecycle phase.
type State string

const (
	// StateDiscovering is the initial state: no peer located yet.
	StateDiscovering State = "discovering"
	// StateConnecting means a peer was discovered and a connection attempt
	// is in flight.
	StateConnecting State = "connecting"
	// StateNegotiating means the connection succeeded and capabilities are
	// being negotiated.
	StateNegotiating State = "negotiating"
	// StateReady means negotiation succeeded; application messages flow.
	StateReady State = "ready"
	// StateError is a terminal failure state.
	StateError State = "error"
	// StateDisconnected is the terminal state after orderly teardown.
	StateDisconnected State = "disconnected"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool { return s == StateError || s == StateDisconnected }

// canTransition encodes the legal transition graph. Error is reachable from
// every non-terminal state; disconnected is reachable from every non-terminal
// state (locally or remotely initiated teardown). There is no way out of a
// terminal state.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateError, StateDisconnected:
		return true
	case StateConnecting:
		return from == StateDiscovering
	case StateNegotiating:
		return from == StateConnecting || from == StateDiscovering || from == StateNegotiating
	case StateReady:
		return from == StateNegotiating
	}
	return false
}
