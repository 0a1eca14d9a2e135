package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// actorHeader carries the caller's identity. Authentication lives in the
// host application; the engine only records who acted.
const actorHeader = "X-Actor"

func requireActor(c *fiber.Ctx) (string, error) {
	actor := strings.TrimSpace(c.Get(actorHeader))
	if actor == "" {
		return "", apperrors.NewValidationError("X-Actor header required", nil)
	}
	return actor, nil
}
