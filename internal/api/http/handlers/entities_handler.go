package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/collab-engine/internal/api/dto"
	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/service"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// EntitiesHandler manages entity reads, bootstrap, changes, and history.
type EntitiesHandler struct {
	entities *service.EntityService
	changes  *service.ChangeService
	history  *service.HistoryService
}

// NewEntitiesHandler constructs handler.
func NewEntitiesHandler(entities *service.EntityService, changes *service.ChangeService, history *service.HistoryService) *EntitiesHandler {
	return &EntitiesHandler{entities: entities, changes: changes, history: history}
}

// CreateEntity POST /entities.
func (h *EntitiesHandler) CreateEntity(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateEntityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entity, err := h.entities.CreateEntity(c.UserContext(), actor, req.Fields)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": entityState(entity)})
}

// GetEntity GET /entities/:id.
func (h *EntitiesHandler) GetEntity(c *fiber.Ctx) error {
	entity, err := h.entities.GetEntityState(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entityState(entity)})
}

// SubmitChange POST /entities/:id/changes.
func (h *EntitiesHandler) SubmitChange(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.SubmitChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.changes.SubmitChange(c.UserContext(), domain.ChangeProposal{
		EntityID:       c.Params("id"),
		BaseVersion:    req.BaseVersion,
		FieldChanges:   req.FieldChanges,
		Actor:          actor,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}

	status := http.StatusOK
	if result.Outcome == domain.OutcomeConflict {
		// A version conflict is a normal protocol outcome, not a failure.
		status = http.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"data": changeResultResponse(result)})
}

// GetHistory GET /entities/:id/history.
func (h *EntitiesHandler) GetHistory(c *fiber.Ctx) error {
	fromVersion, err := queryInt64(c, "from", 0)
	if err != nil {
		return err
	}
	toVersion, err := queryInt64(c, "to", 0)
	if err != nil {
		return err
	}
	entries, err := h.history.GetHistory(c.UserContext(), c.Params("id"), fromVersion, toVersion)
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, auditEntryResponse(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}

// RebuildSnapshot POST /entities/:id/snapshots/:version.
func (h *EntitiesHandler) RebuildSnapshot(c *fiber.Ctx) error {
	version, err := strconv.ParseInt(c.Params("version"), 10, 64)
	if err != nil {
		return apperrors.NewValidationError("invalid version", nil)
	}
	snapshot, err := h.history.RebuildSnapshot(c.UserContext(), c.Params("id"), version)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"entity_id": snapshot.EntityID,
		"version":   snapshot.Version,
		"fields":    snapshot.Fields,
	}})
}

func queryInt64(c *fiber.Ctx, name string, fallback int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid "+name+" parameter", nil)
	}
	return value, nil
}
