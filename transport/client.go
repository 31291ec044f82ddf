package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/logging"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Client is the outbound websocket side: an agent connecting to a remote mesh
// node. It sends messages and negotiation requests and hands received
// messages to a callback.
type Client struct {
	agentID string
	opts    ClientOptions
	logger  logging.Logger

	conn   *websocket.Conn
	writer *connWriter

	mu        sync.Mutex
	onMessage func(ctx context.Context, msg core.Message)
	negotiate chan core.NegotiationResponse
}

// NewClient returns an unconnected Client for the given local agent identity.
func NewClient(agentID string, optFns ...func(o *ClientOptions)) *Client {
	opts := ClientOptions{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{
		agentID:   agentID,
		opts:      opts,
		logger:    opts.Logger,
		negotiate: make(chan core.NegotiationResponse, 1),
	}
}

// OnMessage registers the callback invoked for each received message frame.
// Must be called before Connect.
func (c *Client) OnMessage(fn func(ctx context.Context, msg core.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// Connect dials the remote endpoint and starts the read loop. The identity
// travels in the X-Agent-ID header, credentials as a bearer token.
func (c *Client) Connect(ctx context.Context, url string) error {
	header := http.Header{}
	header.Set("X-Agent-ID", c.agentID)
	if c.opts.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return core.WrapProtocolError(core.CodeConnectionFailed,
				fmt.Sprintf("dial %s: status %d", url, resp.StatusCode), err)
		}
		return core.WrapProtocolError(core.CodeConnectionFailed, "dial "+url, err)
	}

	c.conn = conn
	c.writer = newConnWriter(conn, c.opts.WriteTimeout)
	go c.readLoop(ctx)
	return nil
}

// Send delivers a message to the remote node.
func (c *Client) Send(msg core.Message) error {
	data, err := EncodeFrame(FrameKindMessage, msg)
	if err != nil {
		return err
	}
	return c.writer.write(websocket.TextMessage, data)
}

// Negotiate sends a negotiation request and waits for the result or context
// expiry.
func (c *Client) Negotiate(ctx context.Context, req core.NegotiationRequest) (core.NegotiationResponse, error) {
	data, err := EncodeFrame(FrameKindNegotiate, req)
	if err != nil {
		return core.NegotiationResponse{}, err
	}
	if err := c.writer.write(websocket.TextMessage, data); err != nil {
		return core.NegotiationResponse{}, err
	}

	select {
	case <-ctx.Done():
		return core.NegotiationResponse{}, core.WrapProtocolError(core.CodeConnectionTimeout, "negotiation timed out", ctx.Err())
	case resp := <-c.negotiate:
		return resp, nil
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("read failed", "agent_id", c.agentID, "error", err)
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("unparseable frame", "agent_id", c.agentID, "error", err)
			continue
		}

		switch frame.Kind {
		case FrameKindMessage:
			msg, err := core.DecodeMessage(frame.Payload)
			if err != nil {
				c.logger.Warn("invalid message frame", "agent_id", c.agentID, "error", err)
				continue
			}
			c.mu.Lock()
			fn := c.onMessage
			c.mu.Unlock()
			if fn != nil {
				fn(ctx, msg)
			}

		case FrameKindNegotiationResult:
			var resp core.NegotiationResponse
			if err := json.Unmarshal(frame.Payload, &resp); err != nil {
				c.logger.Warn("invalid negotiation result", "agent_id", c.agentID, "error", err)
				continue
			}
			select {
			case c.negotiate <- resp:
			default:
				// No pending Negotiate call; drop.
			}
		}
	}
}
