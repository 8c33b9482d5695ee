package hub

import (
	"context"
	"iter"
	"sync"

	"github.com/globetrotter/realtime/src/telemetry"
	"github.com/globetrotter/realtime/src/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Rooms tracks which sessions belong to which broadcast group.
// Both directions are indexed under one lock so that leaving every room
// on disconnect costs O(memberships) instead of O(rooms).
type Rooms struct {
	mu          sync.RWMutex
	rooms       map[string]map[*Session]struct{} // room -> members
	memberships map[*Session]map[string]struct{} // session -> rooms

	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

func newRooms(logger zerolog.Logger, m *telemetry.Metrics) *Rooms {
	return &Rooms{
		rooms:       make(map[string]map[*Session]struct{}),
		memberships: make(map[*Session]map[string]struct{}),
		logger:      logger,
		metrics:     m,
	}
}

// JoinRoom adds s to roomID, creating the room if needed.
// Reports whether s was newly added.
func (r *Rooms) JoinRoom(s *Session, roomID string) bool {
	r.mu.Lock()
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[roomID] = members
	}
	if _, ok := members[s]; ok {
		r.mu.Unlock()
		return false
	}
	members[s] = struct{}{}
	joined, ok := r.memberships[s]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[s] = joined
	}
	joined[roomID] = struct{}{}
	r.mu.Unlock()

	r.metrics.RoomJoinsTotal.Add(context.Background(), 1)
	r.logger.Debug().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Str("room_id", roomID).
		Msg("joined room")
	return true
}

// LeaveRoom removes s from roomID and deletes the room once empty.
// Reports whether s was a member.
func (r *Rooms) LeaveRoom(s *Session, roomID string) bool {
	r.mu.Lock()
	ok := r.leaveLocked(s, roomID)
	r.mu.Unlock()

	if ok {
		r.logger.Debug().
			Str("session_id", s.ID).
			Str("user_id", s.UserID).
			Str("room_id", roomID).
			Msg("left room")
	}
	return ok
}

// LeaveAll removes s from every room it belongs to and returns those rooms.
func (r *Rooms) LeaveAll(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.memberships[s]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		r.leaveLocked(s, roomID)
	}
	return left
}

func (r *Rooms) leaveLocked(s *Session, roomID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[s]; !ok {
		return false
	}
	delete(members, s)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	if joined, ok := r.memberships[s]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, s)
		}
	}
	return true
}

// BroadcastToRoom timestamps e, serializes it once and sends it to every
// member of roomID. Members whose write fails are removed from the room and
// closed; their own read loop then finishes the cleanup. Missing rooms are a no-op.
func (r *Rooms) BroadcastToRoom(e types.Event, roomID string) {
	r.mu.RLock()
	members, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return
	}
	// Copy members to avoid holding the lock during sends.
	targets := make([]*Session, 0, len(members))
	for s := range members {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	payload, err := encode(e)
	if err != nil {
		r.logger.Error().Err(err).Str("room_id", roomID).Msg("failed to encode event")
		return
	}
	r.metrics.BroadcastsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("type", e.Type())))

	failed := deliver(r.metrics, targets, payload)
	if len(failed) == 0 {
		return
	}

	r.mu.Lock()
	for _, s := range failed {
		r.leaveLocked(s, roomID)
	}
	r.mu.Unlock()

	for _, s := range failed {
		_ = s.Close()
		r.logger.Warn().
			Str("session_id", s.ID).
			Str("user_id", s.UserID).
			Str("room_id", roomID).
			Msg("pruned room member after failed send")
	}
	recordPrune(r.metrics, "room", len(failed))
}

// CountRoomMembers returns the number of members in roomID, 0 if it does not exist.
func (r *Rooms) CountRoomMembers(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomsOf returns the rooms s currently belongs to.
func (r *Rooms) RoomsOf(s *Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	joined := r.memberships[s]
	out := make([]string, 0, len(joined))
	for roomID := range joined {
		out = append(out, roomID)
	}
	return out
}

// AllRooms yields (roomID, memberCount) pairs from a snapshot taken when
// iteration starts. Joins and leaves during iteration are not reflected.
func (r *Rooms) AllRooms() iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		r.mu.RLock()
		snapshot := make(map[string]int, len(r.rooms))
		for id, members := range r.rooms {
			snapshot[id] = len(members)
		}
		r.mu.RUnlock()

		for id, n := range snapshot {
			if !yield(id, n) {
				return
			}
		}
	}
}
