package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/repository"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// EntityService covers entity bootstrap and versioned reads. Reads are
// unlocked: any number of callers may hold the same stale version.
type EntityService struct {
	entities repository.EntityRepository
	change   *ChangeService
	logger   *zap.Logger
}

// EntityDependencies bundles collaborators for the entity service.
type EntityDependencies struct {
	EntityRepo repository.EntityRepository
	Change     *ChangeService
	Logger     *zap.Logger
}

// NewEntityService constructs the service.
func NewEntityService(deps EntityDependencies) *EntityService {
	return &EntityService{
		entities: deps.EntityRepo,
		change:   deps.Change,
		logger:   deps.Logger,
	}
}

// CreateEntity bootstraps a record. Version 0 is the empty baseline; the
// initial field values land as the first audited change, so replay from 0
// covers the whole lifetime.
func (s *EntityService) CreateEntity(ctx context.Context, actor string, fields map[string]any) (*domain.Entity, error) {
	if actor == "" {
		return nil, apperrors.NewValidationError("actor required", nil)
	}
	entity := &domain.Entity{}
	if err := s.entities.Create(ctx, entity); err != nil {
		return nil, err
	}
	s.logger.Info("entity created", zap.String("entity_id", entity.ID))

	if len(fields) == 0 {
		return entity, nil
	}
	if _, err := s.change.SubmitChange(ctx, domain.ChangeProposal{
		EntityID:     entity.ID,
		BaseVersion:  0,
		FieldChanges: fields,
		Actor:        actor,
	}); err != nil {
		return nil, err
	}
	return fetchEntity(ctx, s.entities, entity.ID)
}

// GetEntityState returns the entity's fields and current version.
func (s *EntityService) GetEntityState(ctx context.Context, entityID string) (*domain.Entity, error) {
	return fetchEntity(ctx, s.entities, entityID)
}
