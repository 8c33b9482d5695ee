package providers

import (
	"encoding/json"
	"errors"

	"github.com/globetrotter/realtime/src/auth"
	"github.com/globetrotter/realtime/src/service"
	"github.com/globetrotter/realtime/src/types"
	"github.com/gofiber/fiber/v3"
)

func (s *Server) registerAdminRoutes(ws fiber.Router) {
	guard := auth.RequireBearer(s.verifier)

	ws.Get("/users", guard, s.handleUsers)
	ws.Get("/users/:user_id", guard, s.handleUser)
	ws.Post("/users/:user_id/notify", guard, s.handleNotify)
	ws.Get("/rooms/:trip_id", guard, s.handleRoom)
	ws.Post("/trips/:trip_id/events", guard, s.handleTripEvent)
	ws.Post("/announce", guard, s.handleAnnounce)
}

func (s *Server) handleUsers(c fiber.Ctx) error {
	users := s.service.Users()
	return c.JSON(fiber.Map{"users": users, "count": len(users)})
}

func (s *Server) handleUser(c fiber.Ctx) error {
	clients, err := s.service.ClientsOf(c.Params("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": clients, "count": len(clients)})
}

func (s *Server) handleRoom(c fiber.Ctx) error {
	tripID := c.Params("trip_id")
	return c.JSON(fiber.Map{
		"trip_id": tripID,
		"members": s.service.RoomMembers(tripID),
	})
}

func (s *Server) handleNotify(c fiber.Ctx) error {
	e, err := decodeEvent(c)
	if err != nil {
		return err
	}
	userID := c.Params("user_id")
	if err := s.service.NotifyUser(userID, e); err != nil {
		return err
	}
	s.logger.Info().Str("by", auth.Subject(c)).Str("user_id", userID).Msg("admin notify")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"sent": true, "user_id": userID})
}

func (s *Server) handleTripEvent(c fiber.Ctx) error {
	e, err := decodeEvent(c)
	if err != nil {
		return err
	}
	tripID := c.Params("trip_id")
	if err := s.service.PublishTripEvent(tripID, e); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"published": true, "trip_id": tripID})
}

func (s *Server) handleAnnounce(c fiber.Ctx) error {
	e, err := decodeEvent(c)
	if err != nil {
		return err
	}
	if err := s.service.Announce(e); err != nil {
		return err
	}
	s.logger.Info().Str("by", auth.Subject(c)).Str("type", e.Type()).Msg("admin announcement")
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"published": true})
}

func decodeEvent(c fiber.Ctx) (types.Event, error) {
	var e types.Event
	if err := json.Unmarshal(c.Body(), &e); err != nil || e == nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "body must be a JSON object")
	}
	return e, nil
}

// errorHandler renders every error as {"error": code, "message": text}.
func errorHandler(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := err.Error()

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		status = fe.Code
		message = fe.Message
	case errors.Is(err, service.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = fiber.StatusNotFound
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   errorCode(status),
		"message": message,
	})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "internal"
	}
}
