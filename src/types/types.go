package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// Event is an outbound JSON object. Values are forwarded as-is, so payloads
// received from clients should be stored as json.RawMessage.
type Event map[string]any

// Type returns the event's "type" field, or "" when missing.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Stamped returns a shallow copy of e with "timestamp" set to now.
// Any client-supplied timestamp is overwritten.
func (e Event) Stamped(now time.Time) Event {
	out := make(Event, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	return out
}

// Inbound is a frame received from a client on the general endpoint.
type Inbound struct {
	Type      string          `json:"type"`
	TripID    TripID          `json:"trip_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Field     json.RawMessage `json:"field,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// TripID accepts either a JSON string or a JSON number.
type TripID string

var errTripID = errors.New("trip_id must be a string or number")

func (t *TripID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = TripID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errTripID
	}
	*t = TripID(n.String())
	return nil
}

// ClientInfo holds metadata about a connected session.
type ClientInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ConnectedAt time.Time `json:"connected_at"`
	Rooms       []string  `json:"rooms"`
}

// Stats is the payload served at /ws/stats.
type Stats struct {
	ActiveUsers int            `json:"active_users"`
	ActiveRooms int            `json:"active_rooms"`
	Rooms       map[string]int `json:"rooms"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte, deadline time.Time) error
	WritePing(deadline time.Time) error
	CloseWithCode(code int, reason string) error
	Close() error
}
