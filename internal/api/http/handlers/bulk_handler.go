package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/collab-engine/internal/api/dto"
	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/service"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// BulkHandler exposes batched change submission.
type BulkHandler struct {
	bulk *service.BulkService
}

// NewBulkHandler constructs handler.
func NewBulkHandler(bulk *service.BulkService) *BulkHandler {
	return &BulkHandler{bulk: bulk}
}

// Submit POST /bulk.
func (h *BulkHandler) Submit(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.SubmitBulkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	proposals := make([]domain.ChangeProposal, 0, len(req.Items))
	for _, item := range req.Items {
		proposals = append(proposals, domain.ChangeProposal{
			EntityID:       item.EntityID,
			BaseVersion:    item.BaseVersion,
			FieldChanges:   item.FieldChanges,
			Actor:          item.Actor,
			IdempotencyKey: item.IdempotencyKey,
		})
	}

	op, err := h.bulk.SubmitBulk(c.UserContext(), actor, proposals)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": bulkOperationResponse(op)})
}

// Get GET /bulk/:id.
func (h *BulkHandler) Get(c *fiber.Ctx) error {
	op, err := h.bulk.GetBulkOperation(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": bulkOperationResponse(op)})
}
