package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/globetrotter/realtime/src/telemetry"
	"github.com/globetrotter/realtime/src/types"
	"github.com/rs/zerolog"
)

// Connections tracks live sessions per user. A user may hold several
// sessions at once, one per browser tab for example.
type Connections struct {
	mu       sync.RWMutex
	users    map[string]map[*Session]struct{}
	sessions int

	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

func newConnections(logger zerolog.Logger, m *telemetry.Metrics) *Connections {
	return &Connections{
		users:   make(map[string]map[*Session]struct{}),
		logger:  logger,
		metrics: m,
	}
}

// Connect registers s under s.UserID. Registering the same session twice is a no-op.
func (c *Connections) Connect(s *Session) {
	c.mu.Lock()
	set, ok := c.users[s.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		c.users[s.UserID] = set
	}
	_, dup := set[s]
	if !dup {
		set[s] = struct{}{}
		c.sessions++
	}
	c.mu.Unlock()

	if dup {
		return
	}
	c.metrics.ActiveSessions.Add(context.Background(), 1)
	c.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Msg("session connected")
}

// Disconnect removes s and drops the user's entry once it is empty.
// It does not touch room membership. Reports whether s was registered.
func (c *Connections) Disconnect(s *Session) bool {
	c.mu.Lock()
	set, ok := c.users[s.UserID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	if _, ok := set[s]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(set, s)
	if len(set) == 0 {
		delete(c.users, s.UserID)
	}
	c.sessions--
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(context.Background(), -1)
	c.logger.Info().
		Str("session_id", s.ID).
		Str("user_id", s.UserID).
		Msg("session disconnected")
	return true
}

// SendToUser timestamps e and delivers it to every session of userID.
// Sessions whose write fails are disconnected and closed. Unknown users are a no-op.
func (c *Connections) SendToUser(e types.Event, userID string) {
	targets := c.sessionsOf(userID)
	if len(targets) == 0 {
		return
	}
	c.send(e, targets, "user")
}

// BroadcastAll timestamps e and delivers it to every live session.
func (c *Connections) BroadcastAll(e types.Event) {
	c.mu.RLock()
	targets := make([]*Session, 0, c.sessions)
	for _, set := range c.users {
		for s := range set {
			targets = append(targets, s)
		}
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	c.send(e, targets, "all")
}

func (c *Connections) send(e types.Event, targets []*Session, scope string) {
	payload, err := encode(e)
	if err != nil {
		c.logger.Error().Err(err).Str("type", e.Type()).Msg("failed to encode event")
		return
	}
	failed := deliver(c.metrics, targets, payload)
	for _, s := range failed {
		c.Disconnect(s)
		_ = s.Close()
		c.logger.Warn().
			Str("session_id", s.ID).
			Str("user_id", s.UserID).
			Msg("pruned session after failed send")
	}
	recordPrune(c.metrics, scope, len(failed))
}

// CountActiveUsers returns the number of users with at least one live session.
func (c *Connections) CountActiveUsers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// CountSessions returns the total number of live sessions.
func (c *Connections) CountSessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions
}

// Users returns the ids of all connected users, sorted.
func (c *Connections) Users() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.users))
	for id := range c.users {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (c *Connections) sessionsOf(userID string) []*Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	set := c.users[userID]
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}
