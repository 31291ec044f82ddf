package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/logging"
	"github.com/hupe1980/feedmesh/metrics"
)

// MessageHandler is a per-type callback invoked synchronously for accepted
// inbound application messages, after the conversation is registered and
// before the generic MessageIncoming event is published.
type MessageHandler func(ctx context.Context, msg core.Message) error

// DefaultPhaseTimeout bounds how long a session may sit in connecting or
// negotiating before the watchdog moves it to error. The reference design had
// no timeout at all; set PhaseTimeout to 0 to restore that behavior.
const DefaultPhaseTimeout = 30 * time.Second

// Options configures a session Handler.
type Options struct {
	// Capabilities is the locally supported capability set negotiated
	// against peer requests.
	Capabilities []core.Capability

	// MessageTypes is the locally supported message-type set. Defaults to
	// all four variants.
	MessageTypes []core.MessageType

	// PhaseTimeout is the watchdog deadline for the connecting and
	// negotiating phases. 0 disables the watchdog.
	PhaseTimeout time.Duration

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Handler is the per-agent session lifecycle state machine. One instance
// exists per authenticated local agent identity; it negotiates and talks to a
// single remote agent at a time, tracked via its bound remote agent id.
//
// All mutable state is guarded by the Handler's own mutex. Events are never
// published while the mutex is held, so subscribers may freely call back into
// the read accessors.
type Handler struct {
	agentID      string
	sessionID    string
	bus          *bus.Bus
	logger       logging.Logger
	offer        core.LocalOffer
	phaseTimeout time.Duration

	mu            sync.Mutex
	state         State
	pendingRemote string // discovered peer awaiting a connection result
	remoteAgentID string // bound peer; empty until a connection succeeds
	capabilities  []core.Capability
	messageTypes  []core.MessageType
	conversations map[string]struct{}
	convOrder     []string // insertion order, for debuggability
	handlers      map[core.MessageType]MessageHandler
	watchdog      *time.Timer
	counted       bool // tracked by the ActiveSessions gauge
	unsubscribes  []func()
}

// NewHandler constructs a session Handler for the given local agent and
// subscribes it to the discovery and connection topics on the bus. The
// handler starts in the discovering state with a freshly generated session id.
func NewHandler(agentID string, b *bus.Bus, optFns ...func(o *Options)) *Handler {
	opts := Options{
		Capabilities: []core.Capability{core.CapabilityMessaging, core.CapabilityAgentDiscovery},
		MessageTypes: core.AllMessageTypes(),
		PhaseTimeout: DefaultPhaseTimeout,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	h := &Handler{
		agentID:      agentID,
		sessionID:    core.NewSessionID(),
		bus:          b,
		logger:       opts.Logger,
		offer:        core.LocalOffer{Capabilities: opts.Capabilities, MessageTypes: opts.MessageTypes},
		phaseTimeout: opts.PhaseTimeout,

		state:         StateDiscovering,
		conversations: make(map[string]struct{}),
		handlers:      make(map[core.MessageType]MessageHandler),
		counted:       true,
	}

	h.unsubscribes = append(h.unsubscribes,
		b.Subscribe(bus.TopicAgentDiscovered, h.onAgentDiscovered),
		b.Subscribe(bus.TopicConnectionResult, h.onConnectionResult),
	)
	metrics.ActiveSessions.Inc()

	return h
}

// State returns the current lifecycle state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SessionID returns the identifier generated at construction time.
func (h *Handler) SessionID() string { return h.sessionID }

// AgentID returns the owning local agent identity.
func (h *Handler) AgentID() string { return h.agentID }

// RemoteAgentID returns the bound peer, or "" before a connection succeeds.
func (h *Handler) RemoteAgentID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remoteAgentID
}

// Capabilities returns a copy of the negotiated capability set. Empty until
// negotiation succeeds.
func (h *Handler) Capabilities() []core.Capability {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.Capability, len(h.capabilities))
	copy(out, h.capabilities)
	return out
}

// MessageTypes returns a copy of the negotiated message-type set.
func (h *Handler) MessageTypes() []core.MessageType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]core.MessageType, len(h.messageTypes))
	copy(out, h.messageTypes)
	return out
}

// ActiveConversations returns a snapshot of known conversation ids in
// insertion order. The registry is append-only for the session's lifetime.
func (h *Handler) ActiveConversations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.convOrder))
	copy(out, h.convOrder)
	return out
}

// RegisterMessageHandler associates a callback with a message type. At most
// one handler per type; later registration replaces earlier ones.
func (h *Handler) RegisterMessageHandler(t core.MessageType, fn MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[t] = fn
}

// CreateConversation generates a fresh conversation id and registers it
// without sending any message, reserving the conversation before the first
// message exists. Fails with INVALID_AGENT when the given peer does not match
// the bound remote agent.
func (h *Handler) CreateConversation(remoteAgentID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.remoteAgentID != "" && remoteAgentID != h.remoteAgentID {
		return "", core.NewProtocolError(core.CodeInvalidAgent,
			fmt.Sprintf("conversation peer %q does not match bound remote %q", remoteAgentID, h.remoteAgentID))
	}
	id := core.NewConversationID()
	h.registerConversationLocked(id)
	return id, nil
}

// NegotiateCapabilities negotiates the requested capabilities against the
// local offer, requesting every locally supported message type. See Negotiate
// for the full semantics.
func (h *Handler) NegotiateCapabilities(remoteAgentID string, requested []core.Capability) core.NegotiationResponse {
	return h.Negotiate(core.NegotiationRequest{
		AgentID:               remoteAgentID,
		Capabilities:          requested,
		SupportedMessageTypes: h.offer.MessageTypes,
	})
}

// Negotiate runs capability negotiation for the bound peer.
//
// Fails with INVALID_AGENT (no state transition) when the requesting agent id
// does not match the connected peer — this guards against cross-wiring
// requests from an unrelated session sharing the event bus. Fails with
// NO_MATCHING_CAPABILITIES and transitions to error when either intersection
// is empty. On acceptance the intersections are stored, the session moves to
// ready and the response echoes the session id.
func (h *Handler) Negotiate(req core.NegotiationRequest) core.NegotiationResponse {
	h.mu.Lock()

	if req.AgentID == "" || req.AgentID != h.remoteAgentID {
		h.mu.Unlock()
		metrics.NegotiationsTotal.WithLabelValues("invalid_agent").Inc()
		h.logger.Warn("negotiation from unbound agent", "agent_id", h.agentID, "requested_by", req.AgentID)
		return core.NegotiationResponse{
			Accepted:     false,
			Capabilities: []core.Capability{},
			Error: &core.NegotiationError{
				Code:    core.CodeInvalidAgent,
				Message: fmt.Sprintf("agent %q is not the connected peer", req.AgentID),
			},
		}
	}

	if h.state != StateNegotiating {
		state := h.state
		h.mu.Unlock()
		metrics.NegotiationsTotal.WithLabelValues("rejected").Inc()
		return core.NegotiationResponse{
			Accepted:     false,
			Capabilities: []core.Capability{},
			Error: &core.NegotiationError{
				Code:    core.CodeProcessingError,
				Message: fmt.Sprintf("negotiation not permitted in state %q", state),
			},
		}
	}

	resp := core.Negotiate(h.offer, req, h.sessionID)
	if resp.Accepted {
		h.capabilities = append([]core.Capability(nil), resp.Capabilities...)
		h.messageTypes = append([]core.MessageType(nil), resp.SupportedMessageTypes...)
		h.transitionLocked(StateReady, "negotiation accepted")
		h.mu.Unlock()
		metrics.NegotiationsTotal.WithLabelValues("accepted").Inc()
		h.logger.Info("negotiation accepted", "agent_id", h.agentID, "remote_agent", req.AgentID, "capabilities", len(resp.Capabilities))
		return resp
	}

	h.transitionLocked(StateError, "negotiation rejected")
	h.mu.Unlock()
	metrics.NegotiationsTotal.WithLabelValues("rejected").Inc()
	h.logger.Warn("negotiation rejected", "agent_id", h.agentID, "remote_agent", req.AgentID, "code", string(resp.Error.Code))
	return resp
}

// SendMessage registers the message's conversation and publishes it on the
// outbound topic. Application messages require the ready state; control
// handshake messages (connect, ping, ack, disconnect) are also valid from the
// pre-ready states. Control messages are published without registering their
// conversation id: handshake traffic is conversation-free even when the
// envelope carries one, matching the inbound side. Returns true on successful
// publish, false otherwise; never panics for expected protocol failures.
func (h *Handler) SendMessage(ctx context.Context, msg core.Message) bool {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return false
	}
	if h.state != StateReady && msg.Type != core.MessageTypeControl {
		h.mu.Unlock()
		h.logger.Warn("send refused before ready", "agent_id", h.agentID, "state", string(h.state), "message_type", string(msg.Type))
		return false
	}

	if msg.FromAgent == "" {
		msg.FromAgent = h.agentID
	}
	if msg.FromAgent != h.agentID {
		h.mu.Unlock()
		h.logger.Warn("send refused: fromAgent is not the session owner", "agent_id", h.agentID, "from_agent", msg.FromAgent)
		return false
	}
	if msg.ToAgent == "" {
		msg.ToAgent = h.remoteAgentID
	}
	if err := msg.Validate(); err != nil {
		h.mu.Unlock()
		h.logger.Warn("send refused: invalid message", "agent_id", h.agentID, "error", err)
		return false
	}

	// Control traffic carries no application conversation.
	if msg.Type != core.MessageTypeControl {
		h.registerConversationLocked(msg.ConversationID)
	}
	h.mu.Unlock()

	if err := h.bus.Publish(ctx, bus.MessageOutgoing{Message: msg}); err != nil {
		h.logger.Warn("outbound publish failed", "agent_id", h.agentID, "error", err)
		return false
	}
	metrics.MessagesTotal.WithLabelValues("outbound", string(msg.Type)).Inc()
	return true
}

// HandleIncomingMessage validates and dispatches an inbound message.
//
// Validation failures publish a MESSAGE_VALIDATION_FAILED error event and
// leave state untouched. Control messages go to the control sub-state-machine.
// Application messages must originate from the bound peer (anything else is an
// unrecoverable agent mismatch moving the session to error); on acceptance the
// conversation is registered, a registered per-type handler is invoked
// synchronously, and a MessageIncoming event is published for external
// consumers regardless of whether a handler exists. Handler faults are
// recovered at this boundary and never crash the process or mutate lifecycle
// state.
func (h *Handler) HandleIncomingMessage(ctx context.Context, msg core.Message) error {
	start := time.Now()

	if err := msg.Validate(); err != nil {
		metrics.ValidationFailures.Inc()
		h.publishError(ctx, core.CodeMessageValidationFailed, err.Error())
		return nil
	}

	if msg.Type == core.MessageTypeControl {
		return h.handleControl(ctx, msg)
	}

	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return nil
	}
	if h.remoteAgentID == "" || msg.FromAgent != h.remoteAgentID {
		h.transitionLocked(StateError, "agent mismatch")
		h.mu.Unlock()
		h.publishError(ctx, core.CodeInvalidAgent,
			fmt.Sprintf("inbound message from %q does not match bound peer", msg.FromAgent))
		return nil
	}
	h.registerConversationLocked(msg.ConversationID)
	fn := h.handlers[msg.Type]
	h.mu.Unlock()

	if fn != nil {
		h.invokeHandler(ctx, fn, msg)
	}

	metrics.MessagesTotal.WithLabelValues("inbound", string(msg.Type)).Inc()
	err := h.bus.Publish(ctx, bus.MessageIncoming{Message: msg})
	h.logger.Debug("inbound message processed",
		"agent_id", h.agentID, "message_type", string(msg.Type),
		"conversation_id", msg.ConversationID, "duration", time.Since(start))
	return err
}

// Disconnect tears the session down from any non-terminal state: a
// control/disconnect message is sent to the bound peer, the session moves to
// disconnected and exactly one AgentDisconnected event is published.
// Idempotent: calling it again from a terminal state is a no-op.
func (h *Handler) Disconnect(ctx context.Context, reason string) {
	h.mu.Lock()
	if h.state.Terminal() {
		h.mu.Unlock()
		return
	}
	remote := h.remoteAgentID
	h.transitionLocked(StateDisconnected, "local disconnect")
	h.mu.Unlock()

	if remote != "" {
		data := map[string]any{}
		if reason != "" {
			data["reason"] = reason
		}
		out := core.NewControlMessage(h.agentID, remote, core.NewConversationID(), core.ControlDisconnect, data)
		if err := h.bus.Publish(ctx, bus.MessageOutgoing{Message: out}); err != nil {
			h.logger.Warn("disconnect notification failed", "agent_id", h.agentID, "error", err)
		}
	}

	if err := h.bus.Publish(ctx, bus.AgentDisconnected{AgentID: h.agentID, RemoteAgentID: remote, Reason: reason}); err != nil {
		h.logger.Warn("disconnect event publish failed", "agent_id", h.agentID, "error", err)
	}
}

// Close detaches the handler from the bus. No further events are delivered.
// It does not initiate teardown; call Disconnect first for an orderly goodbye.
func (h *Handler) Close() {
	for _, unsub := range h.unsubscribes {
		unsub()
	}
	h.mu.Lock()
	if h.counted {
		h.counted = false
		metrics.ActiveSessions.Dec()
	}
	h.stopWatchdogLocked()
	h.mu.Unlock()
}

// ---- bus event reactions ----

func (h *Handler) onAgentDiscovered(ctx context.Context, ev bus.Event) error {
	e, ok := ev.(bus.AgentDiscovered)
	if !ok {
		return nil
	}
	h.mu.Lock()
	if h.state != StateDiscovering {
		h.mu.Unlock()
		return nil
	}
	h.pendingRemote = e.AgentID
	h.transitionLocked(StateConnecting, "agent discovered")
	h.mu.Unlock()
	return nil
}

func (h *Handler) onConnectionResult(ctx context.Context, ev bus.Event) error {
	e, ok := ev.(bus.ConnectionResult)
	if !ok {
		return nil
	}
	h.mu.Lock()
	if h.state != StateConnecting || e.AgentID != h.pendingRemote {
		h.mu.Unlock()
		return nil
	}

	if e.Success {
		h.remoteAgentID = e.AgentID
		h.transitionLocked(StateNegotiating, "connection established")
		h.mu.Unlock()
		return h.bus.Publish(ctx, bus.AgentConnected{AgentID: h.agentID, RemoteAgentID: e.AgentID})
	}

	h.transitionLocked(StateError, "connection failed")
	h.mu.Unlock()
	h.publishError(ctx, core.CodeConnectionFailed, e.Reason)
	return nil
}

// ---- control sub-state-machine ----

// handleControl runs the control sub-state-machine. Once a peer is bound,
// control frames from any other agent are refused with an INVALID_AGENT error
// event and no transition; only a connect on an unbound session is exempt.
func (h *Handler) handleControl(ctx context.Context, msg core.Message) error {
	cc, ok := msg.Content.(core.ControlContent)
	if !ok {
		// Validate guarantees this; guard anyway.
		return nil
	}

	h.mu.Lock()
	bound := h.remoteAgentID
	h.mu.Unlock()
	if bound != "" && msg.FromAgent != bound {
		h.publishError(ctx, core.CodeInvalidAgent,
			fmt.Sprintf("control %s from %q does not match bound peer", cc.Action, msg.FromAgent))
		return nil
	}

	switch cc.Action {
	case core.ControlConnect:
		h.mu.Lock()
		if h.state.Terminal() {
			h.mu.Unlock()
			return nil
		}
		if h.remoteAgentID == "" {
			// Remote-initiated connect over an already-established transport
			// binds the peer directly.
			h.remoteAgentID = msg.FromAgent
			h.pendingRemote = msg.FromAgent
		}
		if h.state == StateDiscovering || h.state == StateConnecting {
			h.transitionLocked(StateNegotiating, "remote connect")
		}
		h.mu.Unlock()
		return h.sendAck(ctx, msg, nil)

	case core.ControlPing:
		h.mu.Lock()
		terminal := h.state.Terminal()
		h.mu.Unlock()
		if terminal {
			return nil
		}
		return h.sendAck(ctx, msg, nil)

	case core.ControlDisconnect:
		h.mu.Lock()
		if h.state.Terminal() {
			h.mu.Unlock()
			return nil
		}
		remote := h.remoteAgentID
		h.transitionLocked(StateDisconnected, "remote disconnect")
		h.mu.Unlock()

		if err := h.sendAck(ctx, msg, nil); err != nil {
			h.logger.Warn("disconnect ack failed", "agent_id", h.agentID, "error", err)
		}
		reason, _ := cc.Data["reason"].(string)
		return h.bus.Publish(ctx, bus.AgentDisconnected{AgentID: h.agentID, RemoteAgentID: remote, Reason: reason})

	case core.ControlAck:
		// Informational only; reserved for future correlation use.
		forMessage, _ := cc.Data["forMessage"].(string)
		h.logger.Debug("control ack received", "agent_id", h.agentID, "for_message", forMessage)
		return nil
	}

	return nil
}

// sendAck publishes a control/ack referencing the inbound message id. Acks
// bypass the SendMessage state gate: a disconnect ack is sent after the
// session has already reached its terminal state.
func (h *Handler) sendAck(ctx context.Context, inbound core.Message, extra map[string]any) error {
	data := map[string]any{"forMessage": inbound.ID}
	for k, v := range extra {
		data[k] = v
	}
	out := core.NewControlMessage(h.agentID, inbound.FromAgent, inbound.ConversationID, core.ControlAck, data)
	out.CorrelationID = inbound.ID
	if err := h.bus.Publish(ctx, bus.MessageOutgoing{Message: out}); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues("outbound", string(core.MessageTypeControl)).Inc()
	return nil
}

// ---- handler dispatch fault boundary ----

func (h *Handler) invokeHandler(ctx context.Context, fn MessageHandler, msg core.Message) {
	defer func() {
		if r := recover(); r != nil {
			h.notifyProcessingError(ctx, msg, fmt.Sprintf("message handler panic: %v", r))
		}
	}()
	if err := fn(ctx, msg); err != nil {
		h.notifyProcessingError(ctx, msg, err.Error())
	}
}

// notifyProcessingError re-surfaces a recovered handler fault to the peer and
// onto the error topic without mutating lifecycle state. The peer
// notification rides an ack frame referencing the failed message, since the
// control vocabulary is closed.
func (h *Handler) notifyProcessingError(ctx context.Context, msg core.Message, detail string) {
	h.logger.Error("message handler fault", "agent_id", h.agentID, "message_id", msg.ID, "detail", detail)
	if err := h.sendAck(ctx, msg, map[string]any{"error": "processing_error", "detail": detail}); err != nil {
		h.logger.Warn("processing_error notification failed", "agent_id", h.agentID, "error", err)
	}
	h.publishError(ctx, core.CodeProcessingError, detail)
}

// ---- internals ----

func (h *Handler) registerConversationLocked(id string) {
	if id == "" {
		return
	}
	if _, ok := h.conversations[id]; ok {
		return
	}
	h.conversations[id] = struct{}{}
	h.convOrder = append(h.convOrder, id)
}

func (h *Handler) transitionLocked(to State, cause string) {
	from := h.state
	if from == to {
		return
	}
	if !canTransition(from, to) {
		h.logger.Warn("illegal transition suppressed", "agent_id", h.agentID, "from", string(from), "to", string(to), "cause", cause)
		return
	}
	h.state = to
	metrics.SessionTransitions.WithLabelValues(string(to)).Inc()
	h.logger.Info("session state transition", "agent_id", h.agentID, "session_id", h.sessionID, "from", string(from), "to", string(to), "cause", cause)

	switch {
	case to.Terminal():
		if h.counted {
			h.counted = false
			metrics.ActiveSessions.Dec()
		}
		h.stopWatchdogLocked()
	case to == StateConnecting || to == StateNegotiating:
		h.armWatchdogLocked(to)
	default:
		h.stopWatchdogLocked()
	}
}

func (h *Handler) armWatchdogLocked(phase State) {
	h.stopWatchdogLocked()
	if h.phaseTimeout <= 0 {
		return
	}
	h.watchdog = time.AfterFunc(h.phaseTimeout, func() { h.onWatchdogExpired(phase) })
}

func (h *Handler) stopWatchdogLocked() {
	if h.watchdog != nil {
		h.watchdog.Stop()
		h.watchdog = nil
	}
}

func (h *Handler) onWatchdogExpired(phase State) {
	h.mu.Lock()
	if h.state != phase {
		h.mu.Unlock()
		return
	}
	h.transitionLocked(StateError, "phase timeout")
	h.mu.Unlock()
	h.publishError(context.Background(), core.CodeConnectionTimeout,
		fmt.Sprintf("timed out waiting in %s", phase))
}

func (h *Handler) publishError(ctx context.Context, code core.Code, message string) {
	if err := h.bus.Publish(ctx, bus.Error{Code: code, Message: message, AgentID: h.agentID, SessionID: h.sessionID}); err != nil {
		h.logger.Warn("error event publish failed", "agent_id", h.agentID, "error", err)
	}
}
