package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/session"
)

func startServer(t *testing.T) (*bus.Bus, *session.Registry, string) {
	t.Helper()
	b := bus.New()
	registry := session.NewRegistry()
	srv := httptest.NewServer(NewServer(b, registry, HeaderAuthenticator()))
	t.Cleanup(srv.Close)
	return b, registry, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, url, agentID string) *Client {
	t.Helper()
	c := NewClient(agentID)
	require.NoError(t, c.Connect(context.Background(), url))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestServer_ConnectNegotiateSend(t *testing.T) {
	b, registry, url := startServer(t)

	incoming := make(chan core.Message, 8)
	b.Subscribe(bus.TopicMessageIncoming, func(ctx context.Context, ev bus.Event) error {
		incoming <- ev.(bus.MessageIncoming).Message
		return nil
	})

	client := NewClient("agent-a")
	received := make(chan core.Message, 8)
	client.OnMessage(func(ctx context.Context, msg core.Message) { received <- msg })
	require.NoError(t, client.Connect(context.Background(), url))
	defer client.Close()

	// The handshake binds the session and earns an ack.
	conv := core.NewConversationID()
	hello := core.NewControlMessage("agent-a", "feedmesh", conv, core.ControlConnect, nil)
	require.NoError(t, client.Send(hello))

	select {
	case ack := <-received:
		require.Equal(t, core.MessageTypeControl, ack.Type)
		cc := ack.Content.(core.ControlContent)
		assert.Equal(t, core.ControlAck, cc.Action)
		assert.Equal(t, hello.ID, cc.Data["forMessage"])
	case <-time.After(2 * time.Second):
		t.Fatal("no ack received")
	}

	handler, ok := registry.Lookup("agent-a")
	require.True(t, ok)
	assert.Equal(t, session.StateNegotiating, handler.State())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Negotiate(ctx, core.NegotiationRequest{
		AgentID:      "agent-a",
		Capabilities: []core.Capability{core.CapabilityMessaging},
	})
	require.NoError(t, err)
	require.True(t, resp.Accepted)
	assert.Equal(t, handler.SessionID(), resp.SessionID)
	assert.Equal(t, session.StateReady, handler.State())

	// An application message now reaches the engine.
	text := core.NewTextMessage("agent-a", "feedmesh", conv, "hello mesh")
	require.NoError(t, client.Send(text))

	select {
	case msg := <-incoming:
		assert.Equal(t, text.ID, msg.ID)
		assert.Equal(t, core.TextContent{Text: "hello mesh"}, msg.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("message never reached the bus")
	}
}

func TestServer_RejectsUnauthenticated(t *testing.T) {
	_, _, url := startServer(t)

	c := NewClient("") // no agent id header content
	err := c.Connect(context.Background(), url)
	require.Error(t, err)
	assert.Equal(t, core.CodeConnectionFailed, core.CodeOf(err))
}

func TestServer_RejectsDuplicateIdentity(t *testing.T) {
	_, _, url := startServer(t)

	connect(t, url, "agent-a")

	dup := NewClient("agent-a")
	err := dup.Connect(context.Background(), url)
	require.Error(t, err)
}

func TestServer_RemovesSessionOnClose(t *testing.T) {
	_, registry, url := startServer(t)

	client := connect(t, url, "agent-a")
	require.Eventually(t, func() bool {
		_, ok := registry.Lookup("agent-a")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		_, ok := registry.Lookup("agent-a")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
