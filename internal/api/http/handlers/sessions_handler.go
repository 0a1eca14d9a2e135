package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/collab-engine/internal/api/dto"
	"github.com/spec-kit/collab-engine/internal/service"
)

// SessionsHandler exposes advisory editing sessions.
type SessionsHandler struct {
	sessions *service.SessionService
}

// NewSessionsHandler constructs handler.
func NewSessionsHandler(sessions *service.SessionService) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

// Start POST /entities/:id/sessions.
func (h *SessionsHandler) Start(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	session, err := h.sessions.StartSession(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": sessionResponse(*session)})
}

// Heartbeat PUT /sessions/:id/heartbeat.
func (h *SessionsHandler) Heartbeat(c *fiber.Ctx) error {
	session, err := h.sessions.Heartbeat(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(*session)})
}

// End DELETE /sessions/:id.
func (h *SessionsHandler) End(c *fiber.Ctx) error {
	if err := h.sessions.EndSession(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListActive GET /entities/:id/sessions.
func (h *SessionsHandler) ListActive(c *fiber.Ctx) error {
	presences, err := h.sessions.ActiveSessions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.SessionPresenceResponse, 0, len(presences))
	for _, presence := range presences {
		items = append(items, dto.SessionPresenceResponse{
			Session:              sessionResponse(presence.Session),
			RecentlyTouchedField: presence.RecentlyTouchedField,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
