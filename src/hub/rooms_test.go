package hub

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/globetrotter/realtime/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomID(t *testing.T) {
	assert.Equal(t, "trip_42", RoomID("42"))
}

func TestJoinLeaveRemovesRoom(t *testing.T) {
	h := newTestHub(t)
	s, _ := newTestSession("alice")

	assert.True(t, h.Rooms.JoinRoom(s, "trip_1"))
	assert.False(t, h.Rooms.JoinRoom(s, "trip_1"))
	assert.Equal(t, 1, h.Rooms.CountRoomMembers("trip_1"))

	assert.True(t, h.Rooms.LeaveRoom(s, "trip_1"))
	assert.False(t, h.Rooms.LeaveRoom(s, "trip_1"))
	assert.Equal(t, 0, h.Rooms.CountRoomMembers("trip_1"))
	assert.Equal(t, 0, h.Rooms.Count())

	for id := range h.Rooms.AllRooms() {
		t.Fatalf("room %s should have been removed", id)
	}
	assert.Empty(t, h.Rooms.RoomsOf(s))
}

func TestBroadcastReachesAllMembers(t *testing.T) {
	h := newTestHub(t)
	conns := make([]*mockConn, 0, 3)
	for i := range 3 {
		s, c := newTestSession(fmt.Sprintf("user-%d", i))
		h.Rooms.JoinRoom(s, "trip_9")
		conns = append(conns, c)
	}
	outsider, outsiderConn := newTestSession("outsider")
	h.Rooms.JoinRoom(outsider, "trip_10")

	h.Rooms.BroadcastToRoom(types.Event{"type": "trip_updated", "trip_id": "9"}, "trip_9")

	for _, c := range conns {
		msg := c.next(t)
		assert.Equal(t, "trip_updated", msg["type"])
		assert.Equal(t, "9", msg["trip_id"])
		assert.NotEmpty(t, msg["timestamp"])
	}
	outsiderConn.expectSilence(t, 50*time.Millisecond)
}

func TestBroadcastPrunesFailedMember(t *testing.T) {
	h := newTestHub(t)
	good, goodConn := newTestSession("alice")
	bad, badConn := newTestSession("bob")
	h.Rooms.JoinRoom(good, "trip_1")
	h.Rooms.JoinRoom(bad, "trip_1")
	h.Rooms.JoinRoom(bad, "trip_2")
	badConn.failWrites.Store(true)

	h.Rooms.BroadcastToRoom(types.Event{"type": "budget_updated"}, "trip_1")

	goodConn.next(t)
	assert.Equal(t, 1, h.Rooms.CountRoomMembers("trip_1"))
	assert.Equal(t, []string{"trip_2"}, h.Rooms.RoomsOf(bad))
	assert.True(t, bad.Closed())
}

func TestBroadcastToMissingRoomIsNoop(t *testing.T) {
	h := newTestHub(t)
	require.NotPanics(t, func() {
		h.Rooms.BroadcastToRoom(types.Event{"type": "x"}, "trip_404")
	})
}

func TestLeaveAllUsesReverseIndex(t *testing.T) {
	h := newTestHub(t)
	s, _ := newTestSession("alice")
	other, _ := newTestSession("bob")
	h.Rooms.JoinRoom(s, "trip_1")
	h.Rooms.JoinRoom(s, "trip_2")
	h.Rooms.JoinRoom(other, "trip_2")

	left := h.Rooms.LeaveAll(s)
	sort.Strings(left)
	assert.Equal(t, []string{"trip_1", "trip_2"}, left)

	rooms := maps.Collect(h.Rooms.AllRooms())
	assert.Equal(t, map[string]int{"trip_2": 1}, rooms)
	assert.Empty(t, h.Rooms.LeaveAll(s))
}

func TestAllRoomsStopsEarly(t *testing.T) {
	h := newTestHub(t)
	for i := range 5 {
		s, _ := newTestSession("u")
		h.Rooms.JoinRoom(s, fmt.Sprintf("trip_%d", i))
	}
	seen := 0
	for range h.Rooms.AllRooms() {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestRoomsConcurrentAccess(t *testing.T) {
	h := newTestHub(t)
	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := newTestSession(fmt.Sprintf("user-%d", i))
			h.Connections.Connect(s)
			for j := range 10 {
				room := fmt.Sprintf("trip_%d", j%3)
				h.Rooms.JoinRoom(s, room)
				h.Rooms.BroadcastToRoom(types.Event{"type": "typing"}, room)
				for range h.Rooms.AllRooms() {
				}
				h.Rooms.LeaveRoom(s, room)
			}
			h.Rooms.LeaveAll(s)
			h.Connections.Disconnect(s)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.Rooms.Count())
	assert.Equal(t, 0, h.Connections.CountActiveUsers())
}

func TestHubStats(t *testing.T) {
	h := newTestHub(t)
	a, _ := newTestSession("alice")
	b, _ := newTestSession("bob")
	h.Connections.Connect(a)
	h.Connections.Connect(b)
	h.Rooms.JoinRoom(a, "trip_42")
	h.Rooms.JoinRoom(b, "trip_42")
	h.Rooms.JoinRoom(b, "trip_7")

	stats := h.Stats()
	assert.Equal(t, 2, stats.ActiveUsers)
	assert.Equal(t, 2, stats.ActiveRooms)
	assert.Equal(t, map[string]int{"trip_42": 2, "trip_7": 1}, stats.Rooms)

	infos := h.ClientInfo("bob")
	require.Len(t, infos, 1)
	assert.Equal(t, b.ID, infos[0].ID)
	assert.Equal(t, []string{"trip_42", "trip_7"}, infos[0].Rooms)
}
