package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/globetrotter/realtime/src/telemetry"
	"github.com/globetrotter/realtime/src/types"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Hub owns the connection and room registries for one process.
// It is constructed explicitly and passed to every handler; there is no
// package-level instance.
type Hub struct {
	Connections *Connections
	Rooms       *Rooms

	logger zerolog.Logger
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	logger = logger.With().Str("component", "hub").Logger()
	m := telemetry.GetMetrics()
	return &Hub{
		Connections: newConnections(logger, m),
		Rooms:       newRooms(logger, m),
		logger:      logger,
	}
}

// RoomID returns the room key for a trip.
func RoomID(tripID string) string {
	return "trip_" + tripID
}

// encode stamps the event with the current time and serializes it once.
func encode(e types.Event) ([]byte, error) {
	return json.Marshal(e.Stamped(time.Now()))
}

// deliver writes payload to every target in order and returns the sessions
// whose write failed.
func deliver(m *telemetry.Metrics, targets []*Session, payload []byte) []*Session {
	var failed []*Session
	delivered := 0
	for _, s := range targets {
		if err := s.Send(payload); err != nil {
			failed = append(failed, s)
			continue
		}
		delivered++
	}
	m.DeliveriesTotal.Add(context.Background(), int64(delivered))
	return failed
}

func recordPrune(m *telemetry.Metrics, scope string, n int) {
	if n == 0 {
		return
	}
	m.SessionsPruned.Add(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("scope", scope)))
}
