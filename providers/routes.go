package providers

import (
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
)

// wsRoute is a parsed WebSocket endpoint path.
type wsRoute struct {
	userID string // general endpoint: /ws/{user_id}
	tripID string // trip endpoint: /ws/trip/{trip_id}
	trip   bool
}

// reservedPaths are /ws/ segments owned by plain HTTP routes; they are never
// treated as user ids.
var reservedPaths = map[string]struct{}{
	"info":     {},
	"stats":    {},
	"users":    {},
	"announce": {},
}

// matchWebSocket parses /ws/{user_id} and /ws/trip/{trip_id}.
func matchWebSocket(path string) (wsRoute, bool) {
	rest, ok := strings.CutPrefix(path, "/ws/")
	if !ok || rest == "" {
		return wsRoute{}, false
	}
	if tripID, ok := strings.CutPrefix(rest, "trip/"); ok {
		if tripID == "" || strings.Contains(tripID, "/") {
			return wsRoute{}, false
		}
		return wsRoute{tripID: tripID, trip: true}, true
	}
	if strings.Contains(rest, "/") {
		return wsRoute{}, false
	}
	if _, ok := reservedPaths[rest]; ok {
		return wsRoute{}, false
	}
	return wsRoute{userID: rest}, true
}

// Handler returns the root fasthttp handler. WebSocket upgrades on the
// /ws/ endpoints are served directly because the upgrader needs the raw
// *fasthttp.RequestCtx; everything else goes through Fiber.
func (s *Server) Handler() fasthttp.RequestHandler {
	app := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if websocket.FastHTTPIsWebSocketUpgrade(ctx) {
			if route, ok := matchWebSocket(string(ctx.Path())); ok {
				s.serveWebSocket(ctx, route)
				return
			}
		}
		app(ctx)
	}
}

func (s *Server) serveWebSocket(ctx *fasthttp.RequestCtx, route wsRoute) {
	if !s.reserveSlot() {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		ctx.SetContentType(fiber.MIMEApplicationJSON)
		ctx.SetBodyString(`{"error":"unavailable","message":"connection limit reached"}`)
		return
	}

	userID := route.userID
	if route.trip {
		// Copy: the request buffer is reused once the handler is hijacked.
		userID = string(ctx.QueryArgs().Peek("user_id"))
	}

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		defer s.releaseSlot()
		if s.cfg.MaxMessageSize > 0 {
			conn.SetReadLimit(s.cfg.MaxMessageSize)
		}
		c := &fasthttpConn{conn: conn}
		if route.trip {
			s.protocol.ServeTrip(s.ctx, c, userID, route.tripID)
			return
		}
		s.protocol.Serve(s.ctx, c, userID)
	})
	if err != nil {
		s.releaseSlot()
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

// reserveSlot claims one of cfg.MaxConnections slots before the handshake so
// concurrent upgrades cannot overshoot the limit. Zero means unlimited.
func (s *Server) reserveSlot() bool {
	limit := int64(s.cfg.MaxConnections)
	if s.slots.Add(1) > limit && limit > 0 {
		s.slots.Add(-1)
		return false
	}
	return true
}

func (s *Server) releaseSlot() {
	s.slots.Add(-1)
}

// RegisterRoutes registers the plain HTTP routes.
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Get("/", s.handleRoot)

	ws := app.Group("/ws")
	ws.Get("/info", s.handleInfo)
	ws.Get("/stats", s.handleStats)

	if s.verifier != nil {
		s.registerAdminRoutes(ws)
	} else {
		s.logger.Info().Msg("no secret key configured, admin API disabled")
	}

	ws.Get("/trip/:trip_id", handleUpgradeRequired)
	ws.Get("/:user_id", handleUpgradeRequired)
}

func (s *Server) handleRoot(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "Welcome to GlobeTrotter realtime API",
		"version": s.version,
	})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoints": []string{"/ws/{user_id}", "/ws/trip/{trip_id}?user_id="},
		"sessions":  s.hub.Connections.CountSessions(),
		"users":     s.hub.Connections.CountActiveUsers(),
		"rooms":     s.hub.Rooms.Count(),
		"bridge":    s.bridgeAvailable(),
	})
}

func (s *Server) handleStats(c fiber.Ctx) error {
	return c.JSON(s.service.Stats())
}

func handleUpgradeRequired(c fiber.Ctx) error {
	return fiber.NewError(fiber.StatusUpgradeRequired, "WebSocket upgrade required")
}
