package hub

import (
	"sort"

	"github.com/globetrotter/realtime/src/types"
)

// Stats returns a point-in-time view of users and rooms.
func (h *Hub) Stats() types.Stats {
	rooms := make(map[string]int)
	for id, n := range h.Rooms.AllRooms() {
		rooms[id] = n
	}
	return types.Stats{
		ActiveUsers: h.Connections.CountActiveUsers(),
		ActiveRooms: len(rooms),
		Rooms:       rooms,
	}
}

// ClientInfo returns metadata for every live session of userID.
func (h *Hub) ClientInfo(userID string) []types.ClientInfo {
	sessions := h.Connections.sessionsOf(userID)
	infos := make([]types.ClientInfo, 0, len(sessions))
	for _, s := range sessions {
		rooms := h.Rooms.RoomsOf(s)
		sort.Strings(rooms)
		infos = append(infos, types.ClientInfo{
			ID:          s.ID,
			UserID:      s.UserID,
			ConnectedAt: s.ConnectedAt(),
			Rooms:       rooms,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ConnectedAt.Before(infos[j].ConnectedAt)
	})
	return infos
}
