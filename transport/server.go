package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/feedmesh/bus"
	"github.com/hupe1980/feedmesh/core"
	"github.com/hupe1980/feedmesh/logging"
	"github.com/hupe1980/feedmesh/session"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// HeartbeatInterval is the websocket ping cadence. 0 disables pings.
	HeartbeatInterval time.Duration

	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration

	// SessionOptions are applied to every session created for an accepted
	// connection.
	SessionOptions []func(o *session.Options)

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Server accepts websocket connections, binds each authenticated agent to a
// session and pumps protocol frames in both directions. It implements
// http.Handler so callers mount it on whatever mux they run.
type Server struct {
	bus      *bus.Bus
	registry *session.Registry
	auth     Authenticator
	upgrader websocket.Upgrader
	opts     ServerOptions
	logger   logging.Logger
}

// Compile-time check that Server implements http.Handler.
var _ http.Handler = (*Server)(nil)

// NewServer returns a Server publishing to and consuming from the given bus.
func NewServer(b *bus.Bus, registry *session.Registry, auth Authenticator, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Server{
		bus:      b,
		registry: registry,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		opts:   opts,
		logger: opts.Logger,
	}
}

// ServeHTTP upgrades the request and runs the connection until either side
// closes. One connection per agent identity; a second connection for a live
// identity is rejected with 409.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID, err := s.auth(r)
	if err != nil {
		s.logger.Warn("connection rejected", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	handler, err := s.registry.Create(agentID, s.bus, s.opts.SessionOptions...)
	if err != nil {
		s.logger.Warn("session creation refused", "agent_id", agentID, "error", err)
		http.Error(w, "session already exists", http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.registry.Remove(agentID)
		s.logger.Warn("websocket upgrade failed", "agent_id", agentID, "error", err)
		return
	}

	s.logger.Info("agent connected", "agent_id", agentID, "session_id", handler.SessionID(), "remote_addr", r.RemoteAddr)
	s.serveConn(r.Context(), conn, agentID, handler)
}

func (s *Server) serveConn(ctx context.Context, conn *websocket.Conn, agentID string, handler *session.Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := newConnWriter(conn, s.opts.WriteTimeout)

	// Outbound: anything the engine addresses to this agent goes down its
	// socket. That covers acks from its own session and messages routed to
	// it by application code.
	unsubscribe := s.bus.Subscribe(bus.TopicMessageOutgoing, func(ctx context.Context, ev bus.Event) error {
		msg := ev.(bus.MessageOutgoing).Message
		if msg.ToAgent != agentID {
			return nil
		}
		data, err := EncodeFrame(FrameKindMessage, msg)
		if err != nil {
			return err
		}
		return writer.write(websocket.TextMessage, data)
	})

	defer func() {
		unsubscribe()
		s.registry.Remove(agentID)
		handler.Disconnect(context.Background(), "connection closed")
		_ = conn.Close()
		s.logger.Info("agent disconnected", "agent_id", agentID)
	}()

	if s.opts.HeartbeatInterval > 0 {
		go s.heartbeat(ctx, writer)
		conn.SetPongHandler(func(string) error { return nil })
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "agent_id", agentID, "error", err)
			}
			return
		}
		if err := s.dispatch(ctx, writer, agentID, handler, data); err != nil {
			s.logger.Warn("frame dispatch failed", "agent_id", agentID, "error", err)
		}
		if handler.State().Terminal() {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, writer *connWriter, agentID string, handler *session.Handler, data []byte) error {
	frame, err := DecodeFrame(data)
	if err != nil {
		return err
	}

	switch frame.Kind {
	case FrameKindMessage:
		msg, err := core.DecodeMessage(frame.Payload)
		if err != nil {
			// Surface the validation failure the same way the engine does
			// for structurally valid but semantically broken messages.
			return s.bus.Publish(ctx, bus.Error{
				Code:    core.CodeMessageValidationFailed,
				Message: err.Error(),
				AgentID: agentID,
			})
		}
		return handler.HandleIncomingMessage(ctx, msg)

	case FrameKindNegotiate:
		var req core.NegotiationRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			return err
		}
		resp := handler.Negotiate(req)
		out, err := EncodeFrame(FrameKindNegotiationResult, resp)
		if err != nil {
			return err
		}
		return writer.write(websocket.TextMessage, out)
	}

	// negotiation_result frames are client-bound only; ignore.
	return nil
}

func (s *Server) heartbeat(ctx context.Context, writer *connWriter) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// connWriter serializes writes to a websocket connection. gorilla/websocket
// permits only one concurrent writer, but frames originate from both the bus
// subscription and the heartbeat ticker.
type connWriter struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func newConnWriter(conn *websocket.Conn, timeout time.Duration) *connWriter {
	return &connWriter{conn: conn, timeout: timeout}
}

func (w *connWriter) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteMessage(messageType, data)
}
