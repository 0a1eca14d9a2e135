package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/collab-engine/internal/api/dto"
	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/service"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// ConflictsHandler exposes conflict listing and resolution.
type ConflictsHandler struct {
	conflicts *service.ConflictService
}

// NewConflictsHandler constructs handler.
func NewConflictsHandler(conflicts *service.ConflictService) *ConflictsHandler {
	return &ConflictsHandler{conflicts: conflicts}
}

// ListByEntity GET /entities/:id/conflicts.
func (h *ConflictsHandler) ListByEntity(c *fiber.Ctx) error {
	onlyOpen := c.QueryBool("open", false)
	conflicts, err := h.conflicts.ListConflicts(c.UserContext(), c.Params("id"), onlyOpen)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": conflictResponses(conflicts)})
}

// Get GET /conflicts/:id.
func (h *ConflictsHandler) Get(c *fiber.Ctx) error {
	conflict, err := h.conflicts.GetConflict(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": conflictResponse(*conflict)})
}

// Resolve POST /conflicts/:id/resolve.
func (h *ConflictsHandler) Resolve(c *fiber.Ctx) error {
	resolver, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.ResolveConflictRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	chooseValue := req.HasChosen || req.ChosenValue != nil
	if req.Strategy != "" && chooseValue {
		return apperrors.NewValidationError("supply either strategy or chosen_value, not both", nil)
	}

	var outcome *service.ResolutionOutcome
	switch {
	case req.Strategy != "":
		outcome, err = h.conflicts.AutoResolve(c.UserContext(), c.Params("id"),
			domain.ResolutionStrategy(req.Strategy), resolver)
	case chooseValue:
		outcome, err = h.conflicts.ManualResolve(c.UserContext(), c.Params("id"), req.ChosenValue, resolver)
	default:
		return apperrors.NewValidationError("strategy or chosen_value required", nil)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": resolutionOutcomeResponse(outcome)})
}
