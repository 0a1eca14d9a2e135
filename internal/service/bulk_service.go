package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/events"
	"github.com/spec-kit/collab-engine/internal/repository"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// BulkService orchestrates batched proposals. Every item runs the normal
// detect-then-apply path independently; the operation never aborts as a
// whole, and every submitted item ends with exactly one outcome.
type BulkService struct {
	bulk       repository.BulkRepository
	change     *ChangeService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// BulkDependencies bundles collaborators for the bulk service.
type BulkDependencies struct {
	BulkRepo   repository.BulkRepository
	Change     *ChangeService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewBulkService constructs the service.
func NewBulkService(deps BulkDependencies) *BulkService {
	return &BulkService{
		bulk:       deps.BulkRepo,
		change:     deps.Change,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// SubmitBulk processes the items in submission order. A store outage mid-
// batch degrades to rejected outcomes for the remaining items rather than
// an all-or-nothing abort.
func (s *BulkService) SubmitBulk(ctx context.Context, submittedBy string, proposals []domain.ChangeProposal) (*domain.BulkOperation, error) {
	if submittedBy == "" {
		return nil, apperrors.NewValidationError("submitted_by required", nil)
	}
	if len(proposals) == 0 {
		return nil, apperrors.NewValidationError("at least one item required", nil)
	}

	op := &domain.BulkOperation{
		ID:          uuid.NewString(),
		SubmittedBy: submittedBy,
	}
	if err := s.bulk.CreateOperation(ctx, op); err != nil {
		return nil, err
	}

	for i, proposal := range proposals {
		if proposal.Actor == "" {
			proposal.Actor = submittedBy
		}
		item := s.processItem(ctx, i, proposal)
		if err := s.bulk.AddItem(ctx, op.ID, item); err != nil {
			s.logger.Warn("bulk item outcome not persisted",
				zap.String("bulk_id", op.ID),
				zap.Int("item_index", i),
				zap.Error(err))
		}
		op.Items = append(op.Items, item)
	}

	completedAt := time.Now().UTC()
	if err := s.bulk.Finalize(ctx, op.ID, completedAt); err != nil {
		s.logger.Warn("bulk operation not finalized",
			zap.String("bulk_id", op.ID), zap.Error(err))
	} else {
		op.CompletedAt = &completedAt
	}

	s.publishCompleted(ctx, op)
	return op, nil
}

func (s *BulkService) processItem(ctx context.Context, index int, proposal domain.ChangeProposal) domain.BulkItemResult {
	item := domain.BulkItemResult{
		ItemIndex: index,
		EntityID:  proposal.EntityID,
	}

	result, err := s.change.Submit(ctx, proposal, domain.OriginBulk)
	if err != nil {
		item.Outcome = domain.OutcomeRejected
		item.Detail = rejectReason(err)
		return item
	}

	item.Outcome = result.Outcome
	item.NewVersion = result.NewVersion
	item.Detail = result.RejectReason
	for _, c := range result.Conflicts {
		item.ConflictIDs = append(item.ConflictIDs, c.ID)
	}
	return item
}

// GetBulkOperation returns an operation with its per-item outcomes.
func (s *BulkService) GetBulkOperation(ctx context.Context, bulkID string) (*domain.BulkOperation, error) {
	op, err := s.bulk.GetByID(ctx, bulkID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("bulk operation", map[string]any{"bulk_id": bulkID})
	}
	if err != nil {
		return nil, err
	}
	return op, nil
}

func rejectReason(err error) string {
	domainErr := apperrors.ToDomainError(err)
	if domainErr == nil {
		return "internal error"
	}
	return domainErr.Code + ": " + domainErr.Message
}

func (s *BulkService) publishCompleted(ctx context.Context, op *domain.BulkOperation) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventBulkCompleted,
		Actor:     op.SubmittedBy,
		Timestamp: time.Now().UTC(),
		Payload: events.BulkCompletedPayload{
			BulkID:    op.ID,
			Counts:    op.Counts(),
			ItemTotal: len(op.Items),
		},
	})
}
