// Package session wraps a WebSocket connection into the hub's two-task
// session shape: a reader goroutine delivering inbound frames in arrival
// order, and a writer goroutine draining an unbounded outbound queue.
//
// The outbound queue is unbounded so components never block on a slow
// socket; producer rate is bounded naturally by socket throughput.
package session

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tilepad/tilepad-server/internal/logger"
	"github.com/tilepad/tilepad-server/pkg/hub/metrics"
)

// Kind distinguishes the two session populations.
type Kind string

const (
	KindDevice Kind = "device"
	KindPlugin Kind = "plugin"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 1 << 20
)

// Handler receives session lifecycle callbacks. OnMessage is invoked from
// the reader goroutine with each text frame, in arrival order. OnClose is
// invoked exactly once after the socket is gone.
type Handler interface {
	OnMessage(s *Session, data []byte)
	OnClose(s *Session)
}

// Session is a single connected WebSocket peer.
type Session struct {
	id      string
	kind    Kind
	remote  string
	conn    *websocket.Conn
	handler Handler

	mu          sync.Mutex
	queue       [][]byte
	closing     bool
	closeReason string

	notify    chan struct{} // wakes the writer, capacity 1
	closeOnce sync.Once
}

// New wraps an upgraded connection. Call Run to start the pumps.
func New(conn *websocket.Conn, kind Kind, handler Handler) *Session {
	return &Session{
		id:      uuid.New().String(),
		kind:    kind,
		remote:  conn.RemoteAddr().String(),
		conn:    conn,
		handler: handler,
		notify:  make(chan struct{}, 1),
	}
}

// ID returns the session id, unique per connection.
func (s *Session) ID() string { return s.id }

// Kind returns whether this is a device or plugin session.
func (s *Session) Kind() Kind { return s.kind }

// RemoteAddr returns the peer's socket address.
func (s *Session) RemoteAddr() string { return s.remote }

// Run starts the writer pump and blocks in the reader pump until the
// connection is gone. Callers run it on a dedicated goroutine per session.
func (s *Session) Run() {
	metrics.SessionsActive.WithLabelValues(string(s.kind)).Inc()
	defer metrics.SessionsActive.WithLabelValues(string(s.kind)).Dec()

	go s.writePump()
	s.readPump()
}

// Send serializes v and enqueues it for the writer. Serialization failure
// is logged and the message dropped; the stream continues. Send never
// blocks on the socket.
func (s *Session) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("failed to encode outbound message",
			"session_id", s.id, "kind", s.kind, "error", err)
		return
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, data)
	s.mu.Unlock()
	s.wake()
}

// Close asks the writer to drain the outbound queue and close the socket.
// Safe to call multiple times and from any goroutine.
func (s *Session) Close() {
	s.closeWithReason("")
}

// CloseWithReason drains, then closes the socket with a policy-violation
// close frame carrying reason.
func (s *Session) CloseWithReason(reason string) {
	s.closeWithReason(reason)
}

func (s *Session) closeWithReason(reason string) {
	s.mu.Lock()
	if !s.closing {
		s.closing = true
		s.closeReason = reason
	}
	s.mu.Unlock()
	s.wake()
}

func (s *Session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) readPump() {
	defer s.closed()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			s.Close()
			return
		}

		switch msgType {
		case websocket.TextMessage:
			metrics.MessagesReceived.WithLabelValues(string(s.kind)).Inc()
			s.handler.OnMessage(s, data)
		case websocket.BinaryMessage:
			logger.Warn("closing session on unexpected binary message",
				"session_id", s.id, "kind", s.kind)
			s.CloseWithReason("unexpected binary message")
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer func() { _ = s.conn.Close() }()

	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closing := s.closing
		reason := s.closeReason
		s.mu.Unlock()

		for _, data := range batch {
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close()
				return
			}
			metrics.MessagesSent.WithLabelValues(string(s.kind)).Inc()
		}

		if closing {
			// Outbound drained; closing the socket ends the reader.
			code := websocket.CloseNormalClosure
			if reason != "" {
				code = websocket.ClosePolicyViolation
			}
			deadline := time.Now().Add(writeWait)
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, reason), deadline)
			return
		}

		select {
		case <-s.notify:
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) closed() {
	s.closeOnce.Do(func() {
		s.handler.OnClose(s)
	})
}

func (s *Session) logReadError(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Debug("session closed by peer", "session_id", s.id, "kind", s.kind)
		return
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		// Connection resets are routine for mobile devices roaming networks.
		logger.Warn("session read failed", "session_id", s.id, "kind", s.kind, "error", err)
		return
	}
	logger.Error("session read failed", "session_id", s.id, "kind", s.kind, "error", err)
}
