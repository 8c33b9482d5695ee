package service

import (
	"errors"
	"fmt"

	"github.com/globetrotter/realtime/src/hub"
	"github.com/globetrotter/realtime/src/types"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidArgument is returned for empty ids or events without a type.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned when a user has no live session.
	ErrNotFound = errors.New("not found")
)

// Service provides the high-level collaboration API used by the admin
// routes and the event bridge.
type Service struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// New creates a new service backed by the given hub.
func New(h *hub.Hub, logger zerolog.Logger) *Service {
	return &Service{hub: h, logger: logger.With().Str("component", "service").Logger()}
}

// Hub returns the underlying hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// NotifyUser sends a personal event to every session of userID.
// Delivery is best-effort; a user with no sessions is not an error.
func (s *Service) NotifyUser(userID string, e types.Event) error {
	if userID == "" {
		return fmt.Errorf("user id is required: %w", ErrInvalidArgument)
	}
	if err := validate(e); err != nil {
		return err
	}
	s.hub.Connections.SendToUser(e, userID)
	s.logger.Debug().Str("user_id", userID).Str("type", e.Type()).Msg("user notified")
	return nil
}

// PublishTripEvent broadcasts an event to the room of tripID.
// The trip_id field is always set to tripID.
func (s *Service) PublishTripEvent(tripID string, e types.Event) error {
	if tripID == "" {
		return fmt.Errorf("trip id is required: %w", ErrInvalidArgument)
	}
	if err := validate(e); err != nil {
		return err
	}
	out := make(types.Event, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out["trip_id"] = tripID
	s.hub.Rooms.BroadcastToRoom(out, hub.RoomID(tripID))
	s.logger.Debug().Str("trip_id", tripID).Str("type", e.Type()).Msg("trip event published")
	return nil
}

// Announce broadcasts an event to every connected session.
func (s *Service) Announce(e types.Event) error {
	if err := validate(e); err != nil {
		return err
	}
	s.hub.Connections.BroadcastAll(e)
	s.logger.Info().Str("type", e.Type()).Msg("announcement sent")
	return nil
}

// Stats returns active users and room sizes.
func (s *Service) Stats() types.Stats {
	return s.hub.Stats()
}

// RoomMembers returns the number of sessions in the room of tripID.
func (s *Service) RoomMembers(tripID string) int {
	return s.hub.Rooms.CountRoomMembers(hub.RoomID(tripID))
}

// Users returns the ids of all connected users.
func (s *Service) Users() []string {
	return s.hub.Connections.Users()
}

// ClientsOf returns session metadata for userID.
func (s *Service) ClientsOf(userID string) ([]types.ClientInfo, error) {
	infos := s.hub.ClientInfo(userID)
	if len(infos) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return infos, nil
}

func validate(e types.Event) error {
	if e.Type() == "" {
		return fmt.Errorf("event type is required: %w", ErrInvalidArgument)
	}
	return nil
}
