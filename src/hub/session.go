package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/globetrotter/realtime/src/types"
	"github.com/google/uuid"
)

// ClosePolicyViolation is the WebSocket close code sent when a handshake
// is refused for policy reasons (RFC 6455 §7.4.1).
const ClosePolicyViolation = 1008

// ErrSessionClosed is returned by Send once the session has been closed.
var ErrSessionClosed = errors.New("session closed")

// Session wraps one WebSocket connection and the user it belongs to.
// Writes are serialized; reads happen only on the session's own read loop.
type Session struct {
	ID          string
	UserID      string
	conn        types.Conn
	connectedAt time.Time
	writeWait   time.Duration

	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
	done    chan struct{}
}

// NewSession creates a session for userID. A zero writeWait disables write deadlines.
func NewSession(userID string, conn types.Conn, writeWait time.Duration) *Session {
	return &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		conn:        conn,
		connectedAt: time.Now(),
		writeWait:   writeWait,
		done:        make(chan struct{}),
	}
}

// ConnectedAt returns when the session was created.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send writes one text frame. It fails fast: there is no queue and no retry.
func (s *Session) Send(payload []byte) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(payload, s.deadline())
}

// SendEvent marshals e and sends it. The event is not timestamped.
func (s *Session) SendEvent(e types.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.Send(payload)
}

// Ping writes a protocol-level ping frame.
func (s *Session) Ping() error {
	if s.Closed() {
		return ErrSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WritePing(s.deadline())
}

// Close closes the underlying connection. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.conn.Close()
}

func (s *Session) read() ([]byte, error) {
	return s.conn.ReadMessage()
}

func (s *Session) deadline() time.Time {
	if s.writeWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.writeWait)
}

// keepAlive sends ping frames every interval until the session closes.
// A failed ping closes the session, which ends its read loop.
func (s *Session) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Ping(); err != nil {
				_ = s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
