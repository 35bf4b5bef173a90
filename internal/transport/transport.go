// Package transport wraps a single WebSocket connection behind a
// named-event protocol: every frame is a JSON envelope carrying an
// event name and an optional payload. The session manager owns the
// connection exclusively; other components only consume the events it
// routes to them.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

// Wire event names. These must match the server contract exactly.
const (
	EventSetup          = "setup"
	EventJoinChat       = "join chat"
	EventLeaveChat      = "leave chat"
	EventTyping         = "typing"
	EventStopTyping     = "stop typing"
	EventNewMessage     = "new message"
	EventMessageIn      = "message received"
	EventUserOnline     = "user online"
	EventUserOffline    = "user offline"
	EventOnlineUsers    = "online users"
	EventGetOnlineUsers = "get online users"
	EventAppBackground  = "app background"
	EventHeartbeat      = "heartbeat"
	EventChatListUpdate = "chat list update"
	EventMessagesRead   = "messages read"
)

const (
	// dialTimeout bounds a single connection attempt.
	dialTimeout = 10 * time.Second

	// writeTimeout bounds a single event write so a stalled peer
	// cannot wedge the caller.
	writeTimeout = 10 * time.Second

	// readLimit caps inbound frame size. Chat events are small JSON
	// payloads; anything larger is a misbehaving peer.
	readLimit = 1 * 1024 * 1024

	// inboundChanSize is the buffer size for the channel carrying
	// events from the reader goroutine to the session manager.
	inboundChanSize = 64
)

// Conn abstracts the WebSocket connection so the session layer can be
// tested without a real server. *websocket.Conn satisfies this interface.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// envelope is the wire shape of a named event.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is one event received from the server. A non-nil Err is the
// final message delivered for a connection: the read loop has exited
// and the session must be considered dropped.
type Inbound struct {
	Name string
	Data json.RawMessage
	Err  error
}

// Session is one live connection speaking the named-event protocol.
// A reader goroutine (started by Start) feeds the inbound channel;
// Emit may be called from any goroutine.
type Session struct {
	conn   Conn
	logger *slog.Logger

	inbound chan Inbound
}

// Dial opens a WebSocket connection to the chat server.
func Dial(ctx context.Context, url string) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil) //nolint:bodyclose // websocket.Dial closes the response body internally
	if err != nil {
		return nil, fmt.Errorf("dialing websocket: %w", err)
	}

	conn.SetReadLimit(readLimit)

	return conn, nil
}

// NewSession wraps an open connection.
func NewSession(conn Conn, logger *slog.Logger) *Session {
	return &Session{
		conn:    conn,
		logger:  logger,
		inbound: make(chan Inbound, inboundChanSize),
	}
}

// Start launches the reader goroutine. It exits when ctx is cancelled
// or a read error occurs; the error is delivered as the final message
// on the inbound channel. The goroutine captures the channel by value
// so a stale reader from a superseded connection cannot feed a newer
// session's channel.
func (s *Session) Start(ctx context.Context) {
	ch := s.inbound
	conn := s.conn

	go func() {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				select {
				case ch <- Inbound{Err: err}:
				case <-ctx.Done():
				}

				return
			}

			if typ == websocket.MessageBinary {
				s.logger.Debug("ignoring binary frame", slog.Int("bytes", len(data)))
				continue
			}

			var env envelope
			if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
				s.logger.Debug("unparseable event frame", slog.Int("bytes", len(data)))
				continue
			}

			select {
			case ch <- Inbound{Name: env.Event, Data: env.Data}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Inbound returns the channel of events read from the connection.
func (s *Session) Inbound() <-chan Inbound {
	return s.inbound
}

// Emit sends a named event with an optional payload. A nil payload
// sends the event name alone.
func (s *Session) Emit(ctx context.Context, name string, payload any) error {
	env := envelope{Event: name}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshalling %q payload: %w", name, err)
		}

		env.Data = data
	}

	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshalling %q envelope: %w", name, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := s.conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("writing %q event: %w", name, err)
	}

	return nil
}

// Close closes the underlying connection. Safe to call more than once;
// the second close returns the connection's own error, which callers
// ignore.
func (s *Session) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "bye")
}
