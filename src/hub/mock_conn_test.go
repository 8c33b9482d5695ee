package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errMockClosed = errors.New("connection closed")

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	failWrites atomic.Bool
	pings      atomic.Int32

	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newMockConn() *mockConn {
	return &mockConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-m.in:
		return b, nil
	case <-m.closed:
		return nil, errMockClosed
	}
}

func (m *mockConn) WriteMessage(data []byte, _ time.Time) error {
	if m.failWrites.Load() {
		return errors.New("broken pipe")
	}
	select {
	case <-m.closed:
		return errMockClosed
	default:
	}
	cp := append([]byte(nil), data...)
	select {
	case m.out <- cp:
		return nil
	default:
		return errors.New("mock output buffer full")
	}
}

func (m *mockConn) WritePing(time.Time) error {
	m.pings.Add(1)
	return nil
}

func (m *mockConn) CloseWithCode(code int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCode = code
	m.closeReason = reason
	return nil
}

func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// send queues a frame as if the client had written it.
func (m *mockConn) send(frame string) {
	m.in <- []byte(frame)
}

// next waits for the next frame written to the client and decodes it.
func (m *mockConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case b := <-m.out:
		var v map[string]any
		require.NoError(t, json.Unmarshal(b, &v), "frame: %s", b)
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// nextOfType skips frames until one with the given type arrives.
func (m *mockConn) nextOfType(t *testing.T, typ string) map[string]any {
	t.Helper()
	for {
		v := m.next(t)
		if v["type"] == typ {
			return v
		}
	}
}

func (m *mockConn) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case b := <-m.out:
		t.Fatalf("unexpected frame: %s", b)
	case <-time.After(d):
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return New(zerolog.Nop())
}

func newTestSession(userID string) (*Session, *mockConn) {
	conn := newMockConn()
	return NewSession(userID, conn, time.Second), conn
}
