package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/metrics"
)

// eventRecorder captures every event published on the given topics.
type eventRecorder struct {
	mu     sync.Mutex
	events []bus.Event
}

func record(b *bus.Bus, topics ...bus.Topic) *eventRecorder {
	r := &eventRecorder{}
	for _, topic := range topics {
		b.Subscribe(topic, func(ctx context.Context, ev bus.Event) error {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
			return nil
		})
	}
	return r
}

func (r *eventRecorder) all() []bus.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bus.Event(nil), r.events...)
}

// driveToNegotiating walks a fresh handler through discovery and connection
// via public bus events only.
func driveToNegotiating(t *testing.T, b *bus.Bus, h *Handler, remote string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, bus.AgentDiscovered{AgentID: remote}))
	require.Equal(t, StateConnecting, h.State())
	require.NoError(t, b.Publish(ctx, bus.ConnectionResult{AgentID: remote, Success: true}))
	require.Equal(t, StateNegotiating, h.State())
	require.Equal(t, remote, h.RemoteAgentID())
}

// driveToReady additionally completes negotiation.
func driveToReady(t *testing.T, b *bus.Bus, h *Handler, remote string) {
	t.Helper()
	driveToNegotiating(t, b, h, remote)
	resp := h.NegotiateCapabilities(remote, []core.Capability{core.CapabilityMessaging})
	require.True(t, resp.Accepted)
	require.Equal(t, StateReady, h.State())
}

func TestHandler_StartsDiscoveringWithSessionID(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()

	assert.Equal(t, StateDiscovering, h.State())
	assert.NotEmpty(t, h.SessionID())
	assert.Empty(t, h.RemoteAgentID())
	assert.Empty(t, h.ActiveConversations())
}

func TestHandler_HappyPathToReady(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicAgentConnected)
	h := NewHandler("agent-a", b)
	defer h.Close()

	driveToNegotiating(t, b, h, "agent-b")

	events := rec.all()
	require.Len(t, events, 1)
	connected := events[0].(bus.AgentConnected)
	assert.Equal(t, "agent-a", connected.AgentID)
	assert.Equal(t, "agent-b", connected.RemoteAgentID)

	resp := h.NegotiateCapabilities("agent-b", []core.Capability{core.CapabilityMessaging, core.CapabilityStreaming})
	require.True(t, resp.Accepted)
	assert.Equal(t, h.SessionID(), resp.SessionID)
	assert.Equal(t, StateReady, h.State())
	// Only the overlap with the local offer (messaging, agent_discovery)
	// survives negotiation.
	assert.Equal(t, []core.Capability{core.CapabilityMessaging}, h.Capabilities())
}

func TestHandler_ConnectionFailureIsTerminal(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicError)
	h := NewHandler("agent-a", b)
	defer h.Close()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, bus.AgentDiscovered{AgentID: "agent-b"}))
	require.NoError(t, b.Publish(ctx, bus.ConnectionResult{AgentID: "agent-b", Success: false, Reason: "dial refused"}))

	assert.Equal(t, StateError, h.State())
	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, core.CodeConnectionFailed, events[0].(bus.Error).Code)

	// Terminal: later events cannot resurrect the session.
	require.NoError(t, b.Publish(ctx, bus.AgentDiscovered{AgentID: "agent-c"}))
	require.NoError(t, b.Publish(ctx, bus.ConnectionResult{AgentID: "agent-c", Success: true}))
	assert.Equal(t, StateError, h.State())
}

func TestHandler_ConnectionResultForOtherAgentIgnored(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, bus.AgentDiscovered{AgentID: "agent-b"}))
	require.NoError(t, b.Publish(ctx, bus.ConnectionResult{AgentID: "agent-x", Success: false, Reason: "unrelated"}))
	assert.Equal(t, StateConnecting, h.State())
}

func TestHandler_NegotiationRejectedOnEmptyIntersection(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b, func(o *Options) {
		o.Capabilities = []core.Capability{core.CapabilityMessaging}
	})
	defer h.Close()
	driveToNegotiating(t, b, h, "agent-b")

	resp := h.NegotiateCapabilities("agent-b", []core.Capability{core.CapabilityFileTransfer})
	require.False(t, resp.Accepted)
	require.NotNil(t, resp.Error)
	assert.Equal(t, core.CodeNoMatchingCapabilities, resp.Error.Code)
	assert.Empty(t, resp.Capabilities)
	assert.Equal(t, StateError, h.State())
}

func TestHandler_NegotiationFromWrongAgentDoesNotTransition(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToNegotiating(t, b, h, "agent-b")

	resp := h.NegotiateCapabilities("agent-evil", []core.Capability{core.CapabilityMessaging})
	require.False(t, resp.Accepted)
	require.NotNil(t, resp.Error)
	assert.Equal(t, core.CodeInvalidAgent, resp.Error.Code)
	// Refusing the request is not a session failure.
	assert.Equal(t, StateNegotiating, h.State())

	// The legitimate peer can still complete negotiation.
	resp = h.NegotiateCapabilities("agent-b", []core.Capability{core.CapabilityMessaging})
	require.True(t, resp.Accepted)
	assert.Equal(t, StateReady, h.State())
}

func TestHandler_NegotiationOutsideNegotiatingState(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()

	resp := h.NegotiateCapabilities("agent-b", []core.Capability{core.CapabilityMessaging})
	require.False(t, resp.Accepted)
	require.NotNil(t, resp.Error)
	// No peer is bound while still discovering.
	assert.Equal(t, core.CodeInvalidAgent, resp.Error.Code)
	assert.Equal(t, StateDiscovering, h.State())
}

func TestHandler_SendMessageRequiresReady(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	ctx := context.Background()

	msg := core.NewTextMessage("agent-a", "agent-b", core.NewConversationID(), "hello")
	assert.False(t, h.SendMessage(ctx, msg))

	driveToReady(t, b, h, "agent-b")
	assert.True(t, h.SendMessage(ctx, msg))
}

func TestHandler_SendMessagePublishesOutgoingAndRegistersConversation(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicMessageOutgoing)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	conv := core.NewConversationID()
	msg := core.NewTextMessage("agent-a", "agent-b", conv, "hello")
	require.True(t, h.SendMessage(context.Background(), msg))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, msg.ID, events[0].(bus.MessageOutgoing).Message.ID)
	assert.Equal(t, []string{conv}, h.ActiveConversations())

	// Same conversation again: no duplicate registration.
	require.True(t, h.SendMessage(context.Background(), core.NewTextMessage("agent-a", "agent-b", conv, "again")))
	assert.Equal(t, []string{conv}, h.ActiveConversations())
}

func TestHandler_SendMessageFillsSenderAndRecipient(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicMessageOutgoing)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	msg := core.NewTextMessage("", "", core.NewConversationID(), "hello")
	require.True(t, h.SendMessage(context.Background(), msg))

	sent := rec.all()[0].(bus.MessageOutgoing).Message
	assert.Equal(t, "agent-a", sent.FromAgent)
	assert.Equal(t, "agent-b", sent.ToAgent)
}

func TestHandler_SendMessageRefusesForeignSender(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	msg := core.NewTextMessage("agent-x", "agent-b", core.NewConversationID(), "spoof")
	assert.False(t, h.SendMessage(context.Background(), msg))
}

func TestHandler_SendControlAllowedBeforeReady(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicMessageOutgoing)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToNegotiating(t, b, h, "agent-b")

	ping := core.NewControlMessage("agent-a", "agent-b", core.NewConversationID(), core.ControlPing, nil)
	assert.True(t, h.SendMessage(context.Background(), ping))
	assert.Len(t, rec.all(), 1)
}

func TestHandler_IncomingInvalidMessagePublishesErrorNoTransition(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicError)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	bad := core.NewTextMessage("agent-b", "agent-a", "", "missing conversation")
	require.NoError(t, h.HandleIncomingMessage(context.Background(), bad))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, core.CodeMessageValidationFailed, events[0].(bus.Error).Code)
	assert.Equal(t, StateReady, h.State())
}

func TestHandler_IncomingFromUnboundAgentIsFatal(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicError)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	msg := core.NewTextMessage("agent-x", "agent-a", core.NewConversationID(), "who am I")
	require.NoError(t, h.HandleIncomingMessage(context.Background(), msg))

	assert.Equal(t, StateError, h.State())
	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, core.CodeInvalidAgent, events[0].(bus.Error).Code)
}

func TestHandler_IncomingDispatchAndEvent(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicMessageIncoming)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	var handled []string
	h.RegisterMessageHandler(core.MessageTypeText, func(ctx context.Context, msg core.Message) error {
		handled = append(handled, msg.Content.(core.TextContent).Text)
		return nil
	})

	conv := core.NewConversationID()
	msg := core.NewTextMessage("agent-b", "agent-a", conv, "hello")
	require.NoError(t, h.HandleIncomingMessage(context.Background(), msg))

	assert.Equal(t, []string{"hello"}, handled)
	assert.Len(t, rec.all(), 1)
	assert.Equal(t, []string{conv}, h.ActiveConversations())
}

func TestHandler_RegisterMessageHandlerReplaces(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	var got string
	h.RegisterMessageHandler(core.MessageTypeText, func(ctx context.Context, msg core.Message) error {
		got = "first"
		return nil
	})
	h.RegisterMessageHandler(core.MessageTypeText, func(ctx context.Context, msg core.Message) error {
		got = "second"
		return nil
	})

	msg := core.NewTextMessage("agent-b", "agent-a", core.NewConversationID(), "x")
	require.NoError(t, h.HandleIncomingMessage(context.Background(), msg))
	assert.Equal(t, "second", got)
}

func TestHandler_HandlerErrorNotifiesPeerWithoutTransition(t *testing.T) {
	b := bus.New()
	out := record(b, bus.TopicMessageOutgoing)
	errs := record(b, bus.TopicError)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	h.RegisterMessageHandler(core.MessageTypeText, func(ctx context.Context, msg core.Message) error {
		return errors.New("cannot process")
	})

	msg := core.NewTextMessage("agent-b", "agent-a", core.NewConversationID(), "x")
	require.NoError(t, h.HandleIncomingMessage(context.Background(), msg))
	assert.Equal(t, StateReady, h.State())

	events := out.all()
	require.Len(t, events, 1)
	notice := events[0].(bus.MessageOutgoing).Message
	require.Equal(t, core.MessageTypeControl, notice.Type)
	cc := notice.Content.(core.ControlContent)
	assert.Equal(t, core.ControlAck, cc.Action)
	assert.Equal(t, msg.ID, cc.Data["forMessage"])
	assert.Equal(t, "processing_error", cc.Data["error"])

	errEvents := errs.all()
	require.Len(t, errEvents, 1)
	assert.Equal(t, core.CodeProcessingError, errEvents[0].(bus.Error).Code)
}

func TestHandler_HandlerPanicIsRecovered(t *testing.T) {
	b := bus.New()
	errs := record(b, bus.TopicError)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	h.RegisterMessageHandler(core.MessageTypeJSON, func(ctx context.Context, msg core.Message) error {
		panic("kaboom")
	})

	msg := core.NewJSONMessage("agent-b", "agent-a", core.NewConversationID(), map[string]any{"k": "v"})
	require.NoError(t, h.HandleIncomingMessage(context.Background(), msg))
	assert.Equal(t, StateReady, h.State())

	events := errs.all()
	require.Len(t, events, 1)
	assert.Equal(t, core.CodeProcessingError, events[0].(bus.Error).Code)
}

func TestHandler_ControlPingGetsAck(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicMessageOutgoing)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	ping := core.NewControlMessage("agent-b", "agent-a", core.NewConversationID(), core.ControlPing, nil)
	require.NoError(t, h.HandleIncomingMessage(context.Background(), ping))
	assert.Equal(t, StateReady, h.State())

	events := rec.all()
	require.Len(t, events, 1)
	ack := events[0].(bus.MessageOutgoing).Message
	cc := ack.Content.(core.ControlContent)
	assert.Equal(t, core.ControlAck, cc.Action)
	assert.Equal(t, ping.ID, cc.Data["forMessage"])
	assert.Equal(t, ping.ID, ack.CorrelationID)
	// Ping exchanges do not register conversations.
	assert.Empty(t, h.ActiveConversations())
}

func TestHandler_AckNotCountedWhenPublishFails(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	b.Subscribe(bus.TopicMessageOutgoing, func(ctx context.Context, ev bus.Event) error {
		return errors.New("wire down")
	})

	counter := metrics.MessagesTotal.WithLabelValues("outbound", string(core.MessageTypeControl))
	before := testutil.ToFloat64(counter)

	ping := core.NewControlMessage("agent-b", "agent-a", core.NewConversationID(), core.ControlPing, nil)
	require.Error(t, h.HandleIncomingMessage(context.Background(), ping))
	assert.Equal(t, before, testutil.ToFloat64(counter))
}

func TestHandler_RemoteConnectBindsPeerAndMovesToNegotiating(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicMessageOutgoing)
	h := NewHandler("agent-a", b)
	defer h.Close()

	connect := core.NewControlMessage("agent-b", "agent-a", core.NewConversationID(), core.ControlConnect, nil)
	require.NoError(t, h.HandleIncomingMessage(context.Background(), connect))

	assert.Equal(t, StateNegotiating, h.State())
	assert.Equal(t, "agent-b", h.RemoteAgentID())
	require.Len(t, rec.all(), 1)
}

func TestHandler_RemoteDisconnect(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicAgentDisconnected, bus.TopicMessageOutgoing)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	bye := core.NewControlMessage("agent-b", "agent-a", core.NewConversationID(), core.ControlDisconnect,
		map[string]any{"reason": "shutting down"})
	require.NoError(t, h.HandleIncomingMessage(context.Background(), bye))

	assert.Equal(t, StateDisconnected, h.State())

	var acks, disconnects int
	for _, ev := range rec.all() {
		switch e := ev.(type) {
		case bus.MessageOutgoing:
			acks++
			assert.Equal(t, core.ControlAck, e.Message.Content.(core.ControlContent).Action)
		case bus.AgentDisconnected:
			disconnects++
			assert.Equal(t, "agent-a", e.AgentID)
			assert.Equal(t, "agent-b", e.RemoteAgentID)
			assert.Equal(t, "shutting down", e.Reason)
		}
	}
	assert.Equal(t, 1, acks)
	assert.Equal(t, 1, disconnects)
}

func TestHandler_ForeignControlFramesRefused(t *testing.T) {
	b := bus.New()
	out := record(b, bus.TopicMessageOutgoing)
	errs := record(b, bus.TopicError)
	disconnects := record(b, bus.TopicAgentDisconnected)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")
	ctx := context.Background()

	// A disconnect from an unrelated agent must not tear down the session
	// or earn an ack addressed to the impostor.
	bye := core.NewControlMessage("agent-x", "agent-a", core.NewConversationID(), core.ControlDisconnect, nil)
	require.NoError(t, h.HandleIncomingMessage(ctx, bye))
	assert.Equal(t, StateReady, h.State())
	assert.Empty(t, out.all())
	assert.Empty(t, disconnects.all())

	ping := core.NewControlMessage("agent-x", "agent-a", core.NewConversationID(), core.ControlPing, nil)
	require.NoError(t, h.HandleIncomingMessage(ctx, ping))
	assert.Empty(t, out.all())

	// A bound session cannot be re-bound by a stray connect either.
	connect := core.NewControlMessage("agent-x", "agent-a", core.NewConversationID(), core.ControlConnect, nil)
	require.NoError(t, h.HandleIncomingMessage(ctx, connect))
	assert.Equal(t, "agent-b", h.RemoteAgentID())

	events := errs.all()
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, core.CodeInvalidAgent, ev.(bus.Error).Code)
	}

	// The legitimate peer is unaffected and can still tear the session down.
	legit := core.NewControlMessage("agent-b", "agent-a", core.NewConversationID(), core.ControlDisconnect, nil)
	require.NoError(t, h.HandleIncomingMessage(ctx, legit))
	assert.Equal(t, StateDisconnected, h.State())
}

func TestHandler_LocalDisconnectIsIdempotent(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicAgentDisconnected, bus.TopicMessageOutgoing)
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")
	ctx := context.Background()

	h.Disconnect(ctx, "done")
	h.Disconnect(ctx, "done again")

	assert.Equal(t, StateDisconnected, h.State())

	var byes, disconnects int
	for _, ev := range rec.all() {
		switch e := ev.(type) {
		case bus.MessageOutgoing:
			byes++
			cc := e.Message.Content.(core.ControlContent)
			assert.Equal(t, core.ControlDisconnect, cc.Action)
			assert.Equal(t, "done", cc.Data["reason"])
		case bus.AgentDisconnected:
			disconnects++
			assert.Equal(t, "done", e.Reason)
		}
	}
	assert.Equal(t, 1, byes)
	assert.Equal(t, 1, disconnects)
}

func TestHandler_DisconnectedRefusesSends(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")
	ctx := context.Background()

	h.Disconnect(ctx, "")
	msg := core.NewTextMessage("agent-a", "agent-b", core.NewConversationID(), "too late")
	assert.False(t, h.SendMessage(ctx, msg))
	// Control frames are refused in terminal states too.
	ping := core.NewControlMessage("agent-a", "agent-b", core.NewConversationID(), core.ControlPing, nil)
	assert.False(t, h.SendMessage(ctx, ping))
}

func TestHandler_CreateConversation(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b)
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	id, err := h.CreateConversation("agent-b")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{id}, h.ActiveConversations())

	_, err = h.CreateConversation("agent-x")
	require.Error(t, err)
	assert.Equal(t, core.CodeInvalidAgent, core.CodeOf(err))
}

func TestHandler_WatchdogTimesOutStalledNegotiation(t *testing.T) {
	b := bus.New()
	rec := record(b, bus.TopicError)
	h := NewHandler("agent-a", b, func(o *Options) {
		o.PhaseTimeout = 20 * time.Millisecond
	})
	defer h.Close()
	driveToNegotiating(t, b, h, "agent-b")

	require.Eventually(t, func() bool {
		return h.State() == StateError
	}, time.Second, 5*time.Millisecond)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, core.CodeConnectionTimeout, events[0].(bus.Error).Code)
}

func TestHandler_WatchdogDisarmedOnReady(t *testing.T) {
	b := bus.New()
	h := NewHandler("agent-a", b, func(o *Options) {
		o.PhaseTimeout = 20 * time.Millisecond
	})
	defer h.Close()
	driveToReady(t, b, h, "agent-b")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateReady, h.State())
}

func TestHandler_MirroredSessionsReproduceContent(t *testing.T) {
	// Two sessions wired back-to-back through the bus: whatever one side
	// sends arrives at the other with its content intact.
	b := bus.New()

	a := NewHandler("agent-a", b)
	defer a.Close()
	driveToReady(t, b, a, "agent-b")

	peer := NewHandler("agent-b", b)
	defer peer.Close()

	// Route outgoing messages into the recipient's session, the way a
	// transport adapter would.
	b.Subscribe(bus.TopicMessageOutgoing, func(ctx context.Context, ev bus.Event) error {
		msg := ev.(bus.MessageOutgoing).Message
		if msg.ToAgent == "agent-b" {
			return peer.HandleIncomingMessage(ctx, msg)
		}
		return nil
	})

	// The inbound connect binds the peer session to agent-a.
	ctx := context.Background()
	connect := core.NewControlMessage("agent-a", "agent-b", core.NewConversationID(), core.ControlConnect, nil)
	require.True(t, a.SendMessage(ctx, connect))
	require.Equal(t, StateNegotiating, peer.State())
	require.True(t, peer.NegotiateCapabilities("agent-a", []core.Capability{core.CapabilityMessaging}).Accepted)

	var got []core.Message
	peer.RegisterMessageHandler(core.MessageTypeText, func(ctx context.Context, msg core.Message) error {
		got = append(got, msg)
		return nil
	})
	peer.RegisterMessageHandler(core.MessageTypeJSON, func(ctx context.Context, msg core.Message) error {
		got = append(got, msg)
		return nil
	})

	conv := core.NewConversationID()
	text := core.NewTextMessage("agent-a", "agent-b", conv, "unchanged across the wire")
	jsonMsg := core.NewJSONMessage("agent-a", "agent-b", conv, map[string]any{"k": "v", "n": float64(7)})
	require.True(t, a.SendMessage(ctx, text))
	require.True(t, a.SendMessage(ctx, jsonMsg))

	require.Len(t, got, 2)
	assert.Equal(t, text.Content, got[0].Content)
	assert.Equal(t, jsonMsg.Content, got[1].Content)
	assert.Equal(t, []string{conv}, peer.ActiveConversations())
}

func TestHandler_IndependentSessionsDoNotInterfere(t *testing.T) {
	b := bus.New()
	h1 := NewHandler("agent-a", b)
	defer h1.Close()

	driveToReady(t, b, h1, "agent-b")

	// A second session on the same bus starts fresh and reacts to its own
	// discovery events without disturbing the first.
	h2 := NewHandler("agent-c", b)
	defer h2.Close()
	driveToReady(t, b, h2, "agent-d")

	assert.Equal(t, StateReady, h1.State())
	assert.Equal(t, "agent-b", h1.RemoteAgentID())
	assert.Equal(t, StateReady, h2.State())
	assert.Equal(t, "agent-d", h2.RemoteAgentID())
	assert.NotEqual(t, h1.SessionID(), h2.SessionID())
}
