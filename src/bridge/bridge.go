package bridge

import (
	"context"

	"github.com/globetrotter/realtime/src/types"
)

// Target values for Envelope.Target.
const (
	TargetRoom = "room"
	TargetUser = "user"
	TargetAll  = "all"
)

// Envelope is the wire format of an event published by the backend
// (trip, itinerary and budget services) for delivery to live sessions.
type Envelope struct {
	InstanceID string      `json:"instance_id,omitempty"`
	Target     string      `json:"target"`
	TripID     string      `json:"trip_id,omitempty"`
	UserID     string      `json:"user_id,omitempty"`
	Event      types.Event `json:"event"`
}

// Bridge defines the interface for relaying backend events into the hub.
type Bridge interface {
	// Publish sends an envelope to every listening server.
	Publish(ctx context.Context, env Envelope) error

	// Start begins listening for published envelopes.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// Target is implemented by the service to receive relayed events.
type Target interface {
	PublishTripEvent(tripID string, e types.Event) error
	NotifyUser(userID string, e types.Event) error
	Announce(e types.Event) error
}
