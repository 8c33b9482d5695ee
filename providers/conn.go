package providers

import (
	"time"

	"github.com/fasthttp/websocket"
)

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

func (f *fasthttpConn) ReadMessage() ([]byte, error) {
	_, data, err := f.conn.ReadMessage()
	return data, err
}

func (f *fasthttpConn) WriteMessage(data []byte, deadline time.Time) error {
	if err := f.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

func (f *fasthttpConn) WritePing(deadline time.Time) error {
	return f.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (f *fasthttpConn) CloseWithCode(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return f.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (f *fasthttpConn) Close() error { return f.conn.Close() }
