package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/repository"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// ResolutionOutcome reports what a resolution did. AlreadyResolved marks
// the idempotent no-op path; FreshConflicts carries any new conflict a
// manual resolution raced into.
type ResolutionOutcome struct {
	Conflict        domain.Conflict
	AlreadyResolved bool
	Applied         bool
	NewVersion      int64
	FreshConflicts  []domain.Conflict
}

// ConflictService lists conflicts and applies resolutions. Resolving an
// already-resolved conflict returns the prior outcome without touching
// state.
type ConflictService struct {
	conflicts repository.ConflictRepository
	entities  repository.EntityRepository
	change    *ChangeService
	logger    *zap.Logger
}

// ConflictDependencies bundles collaborators for the conflict service.
type ConflictDependencies struct {
	ConflictRepo repository.ConflictRepository
	EntityRepo   repository.EntityRepository
	Change       *ChangeService
	Logger       *zap.Logger
}

// NewConflictService constructs the service.
func NewConflictService(deps ConflictDependencies) *ConflictService {
	return &ConflictService{
		conflicts: deps.ConflictRepo,
		entities:  deps.EntityRepo,
		change:    deps.Change,
		logger:    deps.Logger,
	}
}

// GetConflict returns one conflict by ID.
func (s *ConflictService) GetConflict(ctx context.Context, conflictID string) (*domain.Conflict, error) {
	conflict, err := s.conflicts.GetByID(ctx, conflictID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("conflict", map[string]any{"conflict_id": conflictID})
	}
	if err != nil {
		return nil, err
	}
	return conflict, nil
}

// ListConflicts returns an entity's conflicts, optionally only open ones.
func (s *ConflictService) ListConflicts(ctx context.Context, entityID string, onlyOpen bool) ([]domain.Conflict, error) {
	if _, err := fetchEntity(ctx, s.entities, entityID); err != nil {
		return nil, err
	}
	return s.conflicts.ListByEntity(ctx, entityID, onlyOpen)
}

// AutoResolve applies a built-in strategy. Every built-in strategy keeps
// the stored value, since the concurrent writer already won the
// compare-and-swap; they differ in intent recorded on the conflict and in
// whether the host is notified.
func (s *ConflictService) AutoResolve(ctx context.Context, conflictID string, strategy domain.ResolutionStrategy, resolver string) (*ResolutionOutcome, error) {
	if !domain.ValidStrategy(strategy) {
		return nil, apperrors.NewValidationError("unknown resolution strategy", map[string]any{
			"strategy": string(strategy),
		})
	}
	if resolver == "" {
		return nil, apperrors.NewValidationError("resolver required", nil)
	}

	conflict, err := s.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if !conflict.Open() {
		return &ResolutionOutcome{Conflict: *conflict, AlreadyResolved: true}, nil
	}

	now := time.Now().UTC()
	resolved, err := s.conflicts.Resolve(ctx, conflictID, domain.ConflictAutoResolved, &strategy, resolver, now)
	if err != nil {
		return nil, err
	}
	if !resolved {
		// Lost a resolution race; report the winner's outcome.
		return s.priorOutcome(ctx, conflictID)
	}

	conflict.Status = domain.ConflictAutoResolved
	conflict.Strategy = &strategy
	conflict.ResolvedBy = &resolver
	conflict.ResolvedAt = &now
	s.change.publishResolved(ctx, *conflict)
	s.logger.Info("conflict auto-resolved",
		zap.String("conflict_id", conflictID),
		zap.String("strategy", string(strategy)))
	return &ResolutionOutcome{Conflict: *conflict}, nil
}

// ManualResolve records the resolver's chosen value and applies it through
// the same compare-and-swap path as any other change. The apply can race a
// newer concurrent write, re-enter detection, and produce a fresh conflict.
// A failed apply reopens the conflict so the resolution is never recorded
// without its value.
func (s *ConflictService) ManualResolve(ctx context.Context, conflictID string, chosenValue any, resolver string) (*ResolutionOutcome, error) {
	if resolver == "" {
		return nil, apperrors.NewValidationError("resolver required", nil)
	}

	conflict, err := s.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if !conflict.Open() {
		return &ResolutionOutcome{Conflict: *conflict, AlreadyResolved: true}, nil
	}

	entity, err := fetchEntity(ctx, s.entities, conflict.EntityID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	resolved, err := s.conflicts.Resolve(ctx, conflictID, domain.ConflictManuallyResolved, nil, resolver, now)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return s.priorOutcome(ctx, conflictID)
	}

	result, err := s.change.Submit(ctx, domain.ChangeProposal{
		EntityID:     conflict.EntityID,
		BaseVersion:  entity.Version,
		FieldChanges: map[string]any{conflict.FieldName: chosenValue},
		Actor:        resolver,
	}, domain.OriginConflictResolution)
	if err != nil {
		// The chosen value never landed. Put the conflict back so a retry
		// can resolve it for real instead of hitting the idempotent no-op.
		if reopenErr := s.conflicts.Reopen(ctx, conflictID); reopenErr != nil {
			s.logger.Error("conflict stranded resolved after failed apply",
				zap.String("conflict_id", conflictID),
				zap.Error(reopenErr))
		}
		return nil, err
	}

	conflict.Status = domain.ConflictManuallyResolved
	conflict.ResolvedBy = &resolver
	conflict.ResolvedAt = &now
	s.change.publishResolved(ctx, *conflict)

	outcome := &ResolutionOutcome{
		Conflict:       *conflict,
		Applied:        result.Outcome != domain.OutcomeConflict,
		NewVersion:     result.NewVersion,
		FreshConflicts: result.Conflicts,
	}
	s.logger.Info("conflict manually resolved",
		zap.String("conflict_id", conflictID),
		zap.String("resolved_by", resolver),
		zap.Bool("applied", outcome.Applied))
	return outcome, nil
}

func (s *ConflictService) priorOutcome(ctx context.Context, conflictID string) (*ResolutionOutcome, error) {
	conflict, err := s.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	return &ResolutionOutcome{Conflict: *conflict, AlreadyResolved: true}, nil
}
