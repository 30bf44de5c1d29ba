package signaling

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrUnreachable is returned by Transport.Send when the target connection
// is no longer present. Per spec §4.1, the adapter treats this as a
// best-effort, silent-failure condition — callers decide whether it should
// trigger a teardown (it does, via Core.handleTransportError).
var ErrUnreachable = errors.New("signaling: connection unreachable")

// Transport is the Transport Adapter (C6): the boundary between the
// matching/signaling core and the physical bidirectional connection.
// Generalizing this into an interface (the teacher's HandleWebSocket talked
// to *websocket.Conn directly everywhere) lets the core dispatch, match,
// and relay without importing gorilla/websocket, and lets tests substitute
// an in-memory transport.
type Transport interface {
	// Send best-effort delivers an outbound event to connID. It returns
	// ErrUnreachable if the connection is gone. The WebSocket implementation
	// sets no write deadline, so a Send to a slow peer blocks for as long as
	// the underlying socket write does.
	Send(connID uuid.UUID, eventType string, payload any) error

	// Close terminates connID's connection, if still open.
	Close(connID uuid.UUID)
}

// WSAcceptor is the HTTP-upgrade side of a WebSocket Transport: the piece
// that turns an incoming request into a live connection. It is split out
// from Transport proper so the HTTP routing layer can depend on this
// narrower surface without needing to name the unexported concrete type
// NewWSTransport returns.
type WSAcceptor interface {
	Transport
	Accept(w http.ResponseWriter, r *http.Request, onDisconnect func(uuid.UUID)) (uuid.UUID, <-chan Frame, error)
}

// wsTransport is the gorilla/websocket-backed Transport implementation.
// Grounded on the teacher's webrtc/handler.go upgrader + HandleWebSocket
// read loop, split here into a registry of live connections addressed by
// connection_id rather than one handler function closing over a single
// *websocket.Conn.
type wsTransport struct {
	upgrader websocket.Upgrader

	allowedOrigin atomic.Value // string

	mu    sync.Mutex
	conns map[uuid.UUID]*wsConn

	logger *zap.Logger
}

type wsConn struct {
	conn *websocket.Conn
	// writeMu serializes writes onto one connection: gorilla/websocket
	// forbids concurrent writers, and both the read-loop-triggered replies
	// and cross-connection relay sends write to the same socket.
	writeMu sync.Mutex
}

// NewWSTransport builds a Transport whose upgrader only accepts the
// configured allowedOrigin, per spec §6 ("CORS"). The teacher's upgrader
// hardcoded CheckOrigin to always return true; that is replaced here with
// the configured single-origin check.
func NewWSTransport(allowedOrigin string, logger *zap.Logger) *wsTransport {
	t := &wsTransport{
		conns:  make(map[uuid.UUID]*wsConn),
		logger: logger,
	}
	t.allowedOrigin.Store(allowedOrigin)
	t.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin, _ := t.allowedOrigin.Load().(string)
			if origin == "" || origin == "*" {
				return true
			}
			return r.Header.Get("Origin") == origin
		},
	}
	return t
}

// SetAllowedOrigin updates the Origin value the upgrader accepts, without
// requiring a listener restart. Per spec §6, this is the one config field
// safe to hot-swap.
func (t *wsTransport) SetAllowedOrigin(origin string) {
	t.allowedOrigin.Store(origin)
}

// Accept upgrades an HTTP request to a WebSocket connection, assigns it a
// fresh connection_id, and returns the id plus a channel of decoded inbound
// Frames. When the read loop exits for any reason — client close, network
// error, or Close being called — the channel is closed, the socket is
// closed, and then onDisconnect is called with the connection's id.
func (t *wsTransport) Accept(w http.ResponseWriter, r *http.Request, onDisconnect func(uuid.UUID)) (uuid.UUID, <-chan Frame, error) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return uuid.Nil, nil, err
	}

	connID := uuid.New()
	t.mu.Lock()
	t.conns[connID] = &wsConn{conn: conn}
	t.mu.Unlock()

	frames := make(chan Frame, 16)
	go t.readLoop(connID, conn, frames, onDisconnect)
	return connID, frames, nil
}

func (t *wsTransport) readLoop(connID uuid.UUID, conn *websocket.Conn, frames chan<- Frame, onDisconnect func(uuid.UUID)) {
	defer func() {
		close(frames)
		t.mu.Lock()
		delete(t.conns, connID)
		t.mu.Unlock()
		conn.Close()
		onDisconnect(connID)
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if t.logger != nil {
				t.logger.Debug("read loop closing", zap.String("conn_id", connID.String()), zap.Error(err))
			}
			return
		}
		frames <- f
	}
}

// Send implements Transport.
func (t *wsTransport) Send(connID uuid.UUID, eventType string, payload any) error {
	t.mu.Lock()
	wc, ok := t.conns[connID]
	t.mu.Unlock()
	if !ok {
		return ErrUnreachable
	}

	b, err := encodeFrame(eventType, payload)
	if err != nil {
		return err
	}

	wc.writeMu.Lock()
	defer wc.writeMu.Unlock()
	if err := wc.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return ErrUnreachable
	}
	return nil
}

// Close implements Transport.
func (t *wsTransport) Close(connID uuid.UUID) {
	t.mu.Lock()
	wc, ok := t.conns[connID]
	if ok {
		delete(t.conns, connID)
	}
	t.mu.Unlock()
	if ok {
		wc.conn.Close()
	}
}

// decodePayload is a small helper the dispatcher uses to decode a Frame's
// payload into a typed struct, dropping the event silently on malformed
// JSON per the §7 "protocol errors" policy.
func decodePayload[T any](f Frame) (T, bool) {
	var v T
	if len(f.Payload) == 0 {
		return v, true
	}
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
