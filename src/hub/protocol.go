package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/globetrotter/realtime/src/telemetry"
	"github.com/globetrotter/realtime/src/types"
	"github.com/rs/zerolog"
)

// updateEvents maps inbound update types to the event broadcast to the room.
var updateEvents = map[string]string{
	"trip_update":      "trip_updated",
	"itinerary_update": "itinerary_updated",
	"budget_update":    "budget_updated",
	"activity_update":  "activity_updated",
}

// Options tunes per-session behaviour.
type Options struct {
	// PingInterval is how often protocol pings are sent. Zero disables them.
	PingInterval time.Duration
	// WriteTimeout bounds each frame write. Zero disables the deadline.
	WriteTimeout time.Duration
}

type frameHandler func(s *Session, in types.Inbound)

// Protocol runs the read loop of each connection and translates frames
// into registry operations.
type Protocol struct {
	hub      *Hub
	opts     Options
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	handlers map[string]frameHandler
}

// NewProtocol creates a protocol handler bound to h.
func NewProtocol(h *Hub, opts Options, logger zerolog.Logger) *Protocol {
	p := &Protocol{
		hub:     h,
		opts:    opts,
		logger:  logger.With().Str("component", "protocol").Logger(),
		metrics: telemetry.GetMetrics(),
	}
	p.handlers = map[string]frameHandler{
		"ping":       p.handlePing,
		"join_trip":  p.handleJoin,
		"leave_trip": p.handleLeave,
		"typing":     p.handleTyping,
	}
	for in, out := range updateEvents {
		p.handlers[in] = p.updateHandler(out)
	}
	return p
}

// Serve runs the general per-user endpoint until the connection closes or
// ctx is cancelled. On exit the session is removed from both registries and
// every room it was in receives a user_disconnected event.
func (p *Protocol) Serve(ctx context.Context, conn types.Conn, userID string) {
	s := NewSession(userID, conn, p.opts.WriteTimeout)
	p.hub.Connections.Connect(s)
	defer p.cleanup(s, func(string) types.Event {
		return types.Event{"type": "user_disconnected", "user_id": userID}
	})
	defer p.recoverPanic(s)

	stop := p.start(ctx, s)
	defer stop()

	p.reply(s, types.Event{
		"type":       "connection",
		"status":     "connected",
		"user_id":    userID,
		"session_id": s.ID,
		"message":    "WebSocket connection established",
	}.Stamped(time.Now()))

	p.readLoop(s, p.dispatch)
}

// ServeTrip runs the trip-scoped endpoint: the session joins the trip's room
// on connect and every object frame it sends is relayed to that room,
// stamped with the sender's user_id and the trip_id. An empty userID refuses
// the connection with a policy-violation close and touches no registry.
func (p *Protocol) ServeTrip(ctx context.Context, conn types.Conn, userID, tripID string) {
	if userID == "" {
		if err := conn.CloseWithCode(ClosePolicyViolation, "user_id required"); err != nil {
			p.logger.Debug().Err(err).Msg("failed to send close frame")
		}
		_ = conn.Close()
		return
	}

	s := NewSession(userID, conn, p.opts.WriteTimeout)
	roomID := RoomID(tripID)
	p.hub.Connections.Connect(s)
	p.hub.Rooms.JoinRoom(s, roomID)
	defer p.cleanup(s, func(string) types.Event {
		return types.Event{"type": "user_left_trip", "user_id": userID, "trip_id": tripID}
	})
	defer p.recoverPanic(s)

	stop := p.start(ctx, s)
	defer stop()

	p.reply(s, types.Event{
		"type":         "trip_connection",
		"status":       "connected",
		"trip_id":      tripID,
		"user_id":      userID,
		"session_id":   s.ID,
		"active_users": p.hub.Rooms.CountRoomMembers(roomID),
	}.Stamped(time.Now()))

	p.hub.Rooms.BroadcastToRoom(types.Event{
		"type":    "user_joined_trip",
		"user_id": userID,
		"trip_id": tripID,
	}, roomID)

	p.readLoop(s, func(s *Session, raw []byte) {
		p.relay(s, raw, roomID, tripID)
	})
}

// start ties the session to ctx and launches the keep-alive pinger.
func (p *Protocol) start(ctx context.Context, s *Session) func() bool {
	if p.opts.PingInterval > 0 {
		go s.keepAlive(p.opts.PingInterval)
	}
	return context.AfterFunc(ctx, func() { _ = s.Close() })
}

func (p *Protocol) readLoop(s *Session, handle func(*Session, []byte)) {
	for {
		raw, err := s.read()
		if err != nil {
			p.logger.Debug().Err(err).
				Str("session_id", s.ID).
				Str("user_id", s.UserID).
				Msg("read loop finished")
			return
		}
		p.metrics.FramesReceived.Add(context.Background(), 1)
		handle(s, raw)
	}
}

func (p *Protocol) dispatch(s *Session, raw []byte) {
	var in types.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		p.drop(s, err)
		return
	}
	handler, ok := p.handlers[in.Type]
	if !ok {
		return
	}
	handler(s, in)
}

func (p *Protocol) relay(s *Session, raw []byte, roomID, tripID string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		p.drop(s, err)
		return
	}
	e := make(types.Event, len(fields)+2)
	for k, v := range fields {
		e[k] = v
	}
	e["user_id"] = s.UserID
	e["trip_id"] = tripID
	p.hub.Rooms.BroadcastToRoom(e, roomID)
}

func (p *Protocol) drop(s *Session, err error) {
	p.metrics.FramesDropped.Add(context.Background(), 1)
	ev := p.logger.Debug().
		Str("session_id", s.ID).
		Str("user_id", s.UserID)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("dropped malformed frame")
}

// reply sends a personal frame to s. A failed write closes the session.
func (p *Protocol) reply(s *Session, e types.Event) {
	if err := s.SendEvent(e); err != nil {
		p.logger.Debug().Err(err).Str("session_id", s.ID).Msg("reply failed, closing session")
		_ = s.Close()
	}
}

// handlePing echoes the client's timestamp, or stamps server time when the
// ping carried none.
func (p *Protocol) handlePing(s *Session, in types.Inbound) {
	pong := types.Event{"type": "pong"}
	if len(in.Timestamp) == 0 || string(in.Timestamp) == "null" {
		pong = pong.Stamped(time.Now())
	} else {
		pong["timestamp"] = in.Timestamp
	}
	p.reply(s, pong)
}

func (p *Protocol) handleJoin(s *Session, in types.Inbound) {
	if in.TripID == "" {
		return
	}
	tripID := string(in.TripID)
	roomID := RoomID(tripID)
	p.hub.Rooms.JoinRoom(s, roomID)
	p.hub.Rooms.BroadcastToRoom(types.Event{
		"type":    "user_joined",
		"user_id": s.UserID,
		"trip_id": tripID,
	}, roomID)
}

func (p *Protocol) handleLeave(s *Session, in types.Inbound) {
	if in.TripID == "" {
		return
	}
	tripID := string(in.TripID)
	roomID := RoomID(tripID)
	p.hub.Rooms.LeaveRoom(s, roomID)
	p.hub.Rooms.BroadcastToRoom(types.Event{
		"type":    "user_left",
		"user_id": s.UserID,
		"trip_id": tripID,
	}, roomID)
}

func (p *Protocol) updateHandler(eventType string) frameHandler {
	return func(s *Session, in types.Inbound) {
		if in.TripID == "" {
			return
		}
		tripID := string(in.TripID)
		p.hub.Rooms.BroadcastToRoom(types.Event{
			"type":       eventType,
			"trip_id":    tripID,
			"data":       in.Data,
			"user_id":    s.UserID,
			"updated_by": s.UserID,
		}, RoomID(tripID))
	}
}

func (p *Protocol) handleTyping(s *Session, in types.Inbound) {
	if in.TripID == "" {
		return
	}
	tripID := string(in.TripID)
	p.hub.Rooms.BroadcastToRoom(types.Event{
		"type":    "user_typing",
		"trip_id": tripID,
		"user_id": s.UserID,
		"field":   in.Field,
	}, RoomID(tripID))
}

func (p *Protocol) recoverPanic(s *Session) {
	if r := recover(); r != nil {
		p.logger.Error().
			Interface("panic", r).
			Str("session_id", s.ID).
			Str("user_id", s.UserID).
			Msg("session handler panicked")
	}
}

// cleanup closes s, removes it from both registries and notifies every room
// it was still in.
func (p *Protocol) cleanup(s *Session, notice func(roomID string) types.Event) {
	_ = s.Close()
	p.hub.Connections.Disconnect(s)
	for _, roomID := range p.hub.Rooms.LeaveAll(s) {
		p.hub.Rooms.BroadcastToRoom(notice(roomID), roomID)
	}
}
