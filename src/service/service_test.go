package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/globetrotter/realtime/src/hub"
	"github.com/globetrotter/realtime/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConn implements types.Conn and records written frames.
type recordingConn struct {
	frames chan []byte
}

func newRecordingConn() *recordingConn {
	return &recordingConn{frames: make(chan []byte, 16)}
}

func (c *recordingConn) ReadMessage() ([]byte, error) { return nil, errors.New("not readable") }
func (c *recordingConn) WriteMessage(b []byte, _ time.Time) error {
	c.frames <- append([]byte(nil), b...)
	return nil
}
func (c *recordingConn) WritePing(time.Time) error       { return nil }
func (c *recordingConn) CloseWithCode(int, string) error { return nil }
func (c *recordingConn) Close() error                    { return nil }

func (c *recordingConn) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case b := <-c.frames:
		var v map[string]any
		require.NoError(t, json.Unmarshal(b, &v))
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(hub.New(zerolog.Nop()), zerolog.Nop())
}

func connect(svc *Service, userID string, tripIDs ...string) (*hub.Session, *recordingConn) {
	conn := newRecordingConn()
	s := hub.NewSession(userID, conn, 0)
	svc.Hub().Connections.Connect(s)
	for _, id := range tripIDs {
		svc.Hub().Rooms.JoinRoom(s, hub.RoomID(id))
	}
	return s, conn
}

func TestNotifyUser(t *testing.T) {
	svc := newTestService(t)
	_, conn := connect(svc, "alice")

	require.NoError(t, svc.NotifyUser("alice", types.Event{"type": "trip_shared", "trip_id": "3"}))
	msg := conn.next(t)
	assert.Equal(t, "trip_shared", msg["type"])
	assert.NotEmpty(t, msg["timestamp"])

	// Offline users are not an error.
	assert.NoError(t, svc.NotifyUser("ghost", types.Event{"type": "x"}))
}

func TestNotifyUserValidation(t *testing.T) {
	svc := newTestService(t)

	err := svc.NotifyUser("", types.Event{"type": "x"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.NotifyUser("alice", types.Event{"data": 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPublishTripEvent(t *testing.T) {
	svc := newTestService(t)
	_, member := connect(svc, "alice", "9")
	_, outsider := connect(svc, "bob", "10")

	event := types.Event{"type": "budget_updated", "trip_id": "spoofed", "data": map[string]any{"total": 1200}}
	require.NoError(t, svc.PublishTripEvent("9", event))

	msg := member.next(t)
	assert.Equal(t, "budget_updated", msg["type"])
	assert.Equal(t, "9", msg["trip_id"])
	assert.Equal(t, "spoofed", event["trip_id"])

	select {
	case b := <-outsider.frames:
		t.Fatalf("outsider received %s", b)
	case <-time.After(50 * time.Millisecond):
	}

	assert.ErrorIs(t, svc.PublishTripEvent("", event), ErrInvalidArgument)
}

func TestAnnounce(t *testing.T) {
	svc := newTestService(t)
	_, a := connect(svc, "alice")
	_, b := connect(svc, "bob")

	require.NoError(t, svc.Announce(types.Event{"type": "maintenance"}))
	assert.Equal(t, "maintenance", a.next(t)["type"])
	assert.Equal(t, "maintenance", b.next(t)["type"])
}

func TestStatsAndLookups(t *testing.T) {
	svc := newTestService(t)
	s, _ := connect(svc, "alice", "42")
	connect(svc, "bob", "42")

	stats := svc.Stats()
	assert.Equal(t, 2, stats.ActiveUsers)
	assert.Equal(t, map[string]int{"trip_42": 2}, stats.Rooms)
	assert.Equal(t, 2, svc.RoomMembers("42"))
	assert.Equal(t, 0, svc.RoomMembers("43"))
	assert.Equal(t, []string{"alice", "bob"}, svc.Users())

	infos, err := svc.ClientsOf("alice")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, s.ID, infos[0].ID)
	assert.Equal(t, []string{"trip_42"}, infos[0].Rooms)

	_, err = svc.ClientsOf("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
