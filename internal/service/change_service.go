package service

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-engine/internal/config"
	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/events"
	"github.com/spec-kit/collab-engine/internal/observability"
	"github.com/spec-kit/collab-engine/internal/repository"
	apperrors "github.com/spec-kit/collab-engine/pkg/util"
)

// ChangeService runs the core optimistic-concurrency path: detect whether a
// proposal collides with concurrent edits, auto-merge disjoint field sets,
// apply through the version compare-and-swap, and record conflicts for the
// rest. Version conflicts are a normal protocol outcome, never an error.
type ChangeService struct {
	entities    repository.EntityRepository
	audit       repository.AuditRepository
	conflicts   repository.ConflictRepository
	idempotency repository.IdempotencyStore
	history     *HistoryService
	validator   ProposalValidator
	policy      ResolutionPolicy
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         config.EngineConfig
}

// ChangeDependencies bundles collaborators for the change service.
type ChangeDependencies struct {
	EntityRepo   repository.EntityRepository
	AuditRepo    repository.AuditRepository
	ConflictRepo repository.ConflictRepository
	Idempotency  repository.IdempotencyStore
	History      *HistoryService
	Validator    ProposalValidator
	Policy       ResolutionPolicy
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Engine       config.EngineConfig
}

// NewChangeService constructs the service.
func NewChangeService(deps ChangeDependencies) *ChangeService {
	validator := deps.Validator
	if validator == nil {
		validator = noopValidator{}
	}
	return &ChangeService{
		entities:    deps.EntityRepo,
		audit:       deps.AuditRepo,
		conflicts:   deps.ConflictRepo,
		idempotency: deps.Idempotency,
		history:     deps.History,
		validator:   validator,
		policy:      deps.Policy,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         deps.Engine,
	}
}

// SubmitChange processes one proposal end to end.
func (s *ChangeService) SubmitChange(ctx context.Context, proposal domain.ChangeProposal) (*domain.ChangeResult, error) {
	return s.Submit(ctx, proposal, domain.OriginDirect)
}

// Submit processes one proposal, recording audit entries under the given
// origin. Bulk items and conflict resolutions reuse this path with their
// own origins.
func (s *ChangeService) Submit(ctx context.Context, proposal domain.ChangeProposal, origin domain.ChangeOrigin) (*domain.ChangeResult, error) {
	if err := s.checkProposal(proposal); err != nil {
		return nil, err
	}

	if proposal.IdempotencyKey != "" && s.idempotency != nil {
		cached, err := s.idempotency.Get(ctx, proposal.EntityID, proposal.IdempotencyKey)
		if err != nil {
			s.logger.Warn("idempotency lookup failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	result, err := s.process(ctx, proposal, origin)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOutcome(result.Outcome)
	if proposal.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.Put(ctx, proposal.EntityID, proposal.IdempotencyKey, result, s.cfg.IdempotencyTTL()); err != nil {
			s.logger.Warn("idempotency record failed", zap.Error(err))
		}
	}
	return result, nil
}

func (s *ChangeService) checkProposal(proposal domain.ChangeProposal) error {
	if proposal.EntityID == "" {
		return apperrors.NewValidationError("entity id required", nil)
	}
	if proposal.Actor == "" {
		return apperrors.NewValidationError("actor required", nil)
	}
	if len(proposal.FieldChanges) == 0 {
		return apperrors.NewValidationError("at least one field change required", nil)
	}
	if proposal.BaseVersion < 0 {
		return apperrors.NewValidationError("base version must not be negative", nil)
	}
	return s.validator.Validate(proposal)
}

// process runs detect-then-apply, re-detecting whenever the compare-and-
// swap loses a race. The loop is bounded; sustained contention surfaces as
// an error rather than spinning.
func (s *ChangeService) process(ctx context.Context, proposal domain.ChangeProposal, origin domain.ChangeOrigin) (*domain.ChangeResult, error) {
	attempts := s.cfg.CASReapplyLimit
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		result, raced, err := s.attempt(ctx, proposal, origin)
		if err != nil {
			return nil, err
		}
		if !raced {
			return result, nil
		}
	}
	return nil, apperrors.NewDomainError("CONTENTION",
		"entity under sustained write contention", http.StatusServiceUnavailable,
		map[string]any{"entity_id": proposal.EntityID})
}

// attempt performs one detection pass and, when possible, one apply. The
// raced return asks the caller to re-detect after a lost compare-and-swap.
func (s *ChangeService) attempt(ctx context.Context, proposal domain.ChangeProposal, origin domain.ChangeOrigin) (*domain.ChangeResult, bool, error) {
	entity, err := fetchEntity(ctx, s.entities, proposal.EntityID)
	if err != nil {
		return nil, false, err
	}
	if proposal.BaseVersion > entity.Version {
		return nil, false, apperrors.NewValidationError("base version ahead of entity", map[string]any{
			"base_version": proposal.BaseVersion, "current_version": entity.Version,
		})
	}

	changedSince, err := s.history.ChangedFieldsSince(ctx, proposal.EntityID, proposal.BaseVersion)
	if err != nil {
		return nil, false, err
	}
	openConflicts, err := s.conflicts.ListOpenByFields(ctx, proposal.EntityID, proposal.FieldNames())
	if err != nil {
		return nil, false, err
	}
	blocked := make(map[string]struct{}, len(openConflicts))
	for _, c := range openConflicts {
		blocked[c.FieldName] = struct{}{}
	}

	var applyFields, collidingFields []string
	for name := range proposal.FieldChanges {
		_, isBlocked := blocked[name]
		_, changed := changedSince[name]
		if isBlocked || changed {
			collidingFields = append(collidingFields, name)
		} else {
			applyFields = append(applyFields, name)
		}
	}

	clean := proposal.BaseVersion == entity.Version && len(blocked) == 0

	if len(collidingFields) == 0 {
		newVersion, ok, err := s.applyWithRetry(ctx, entity, applyFields, proposal, origin)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		outcome := domain.OutcomeAutoMerged
		if clean {
			outcome = domain.OutcomeApplied
		}
		result := &domain.ChangeResult{
			Outcome:       outcome,
			NewVersion:    newVersion,
			AppliedFields: applyFields,
		}
		s.publishApplied(ctx, proposal, origin, result)
		return result, false, nil
	}

	// Colliding fields are held back; the disjoint remainder still merges.
	var newVersion int64
	var appliedFields []string
	if len(applyFields) > 0 {
		version, ok, err := s.applyWithRetry(ctx, entity, applyFields, proposal, origin)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		newVersion = version
		appliedFields = applyFields
	}

	conflicts, err := s.recordConflicts(ctx, entity, proposal, collidingFields)
	if err != nil {
		return nil, false, err
	}

	result := &domain.ChangeResult{
		Outcome:       domain.OutcomeConflict,
		NewVersion:    newVersion,
		AppliedFields: appliedFields,
		Conflicts:     conflicts,
	}
	if len(appliedFields) > 0 {
		s.publishApplied(ctx, proposal, origin, result)
	}
	return result, false, nil
}

// applyWithRetry drives the compare-and-swap, retrying transient store
// failures with exponential backoff before surfacing StoreUnavailable.
func (s *ChangeService) applyWithRetry(ctx context.Context, entity *domain.Entity, fieldNames []string, proposal domain.ChangeProposal, origin domain.ChangeOrigin) (int64, bool, error) {
	fieldChanges := make(map[string]any, len(fieldNames))
	diffs := make([]domain.FieldDiff, 0, len(fieldNames))
	for _, name := range fieldNames {
		newValue := proposal.FieldChanges[name]
		fieldChanges[name] = newValue
		diffs = append(diffs, domain.FieldDiff{
			FieldName: name,
			OldValue:  entity.Fields[name],
			NewValue:  newValue,
		})
	}

	auditOrigin := origin
	if origin == domain.OriginDirect && proposal.BaseVersion < entity.Version {
		auditOrigin = domain.OriginAutoMerge
	}

	change := repository.ApplyChange{
		EntityID:         entity.ID,
		BaseVersion:      entity.Version,
		FieldChanges:     fieldChanges,
		Diffs:            diffs,
		Actor:            proposal.Actor,
		Origin:           auditOrigin,
		SnapshotInterval: s.cfg.SnapshotInterval,
	}

	var newVersion int64
	var ok bool
	operation := func() error {
		version, applied, err := s.entities.ApplyIfCurrent(ctx, change)
		if err != nil {
			if repository.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		newVersion, ok = version, applied
		return nil
	}

	policy := backoff.WithContext(s.storeBackoff(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if repository.IsTransient(err) {
			return 0, false, apperrors.NewStoreUnavailable(err)
		}
		return 0, false, err
	}
	return newVersion, ok, nil
}

func (s *ChangeService) storeBackoff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	if s.cfg.StoreRetryBaseMillis > 0 {
		policy.InitialInterval = time.Duration(s.cfg.StoreRetryBaseMillis) * time.Millisecond
	}
	if s.cfg.StoreRetryMaxMillis > 0 {
		policy.MaxInterval = time.Duration(s.cfg.StoreRetryMaxMillis) * time.Millisecond
	}
	maxRetries := s.cfg.StoreRetryMax
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithMaxRetries(policy, uint64(maxRetries))
}

// recordConflicts creates one conflict per colliding field, applying any
// host-configured auto strategy right away. All three built-in strategies
// keep the stored value: the first write already won the race, so they
// differ only in how the losing proposal is reported.
func (s *ChangeService) recordConflicts(ctx context.Context, entity *domain.Entity, proposal domain.ChangeProposal, fieldNames []string) ([]domain.Conflict, error) {
	baseState, err := s.history.StateAt(ctx, entity.ID, proposal.BaseVersion)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conflicts := make([]domain.Conflict, 0, len(fieldNames))
	for _, name := range fieldNames {
		conflicts = append(conflicts, domain.Conflict{
			ID:          uuid.NewString(),
			EntityID:    entity.ID,
			FieldName:   name,
			BaseVersion: proposal.BaseVersion,
			BaseValue:   baseState[name],
			TheirsValue: entity.Fields[name],
			OursValue:   proposal.FieldChanges[name],
			ProposedBy:  proposal.Actor,
			Status:      domain.ConflictUnresolved,
			CreatedAt:   now,
		})
	}
	if err := s.conflicts.CreateMany(ctx, conflicts); err != nil {
		return nil, err
	}

	for i := range conflicts {
		c := &conflicts[i]
		strategy, configured := s.policy.StrategyFor(c.FieldName)
		if !configured {
			continue
		}
		resolved, err := s.conflicts.Resolve(ctx, c.ID, domain.ConflictAutoResolved, &strategy, policyResolver, now)
		if err != nil {
			return nil, err
		}
		if resolved {
			c.Status = domain.ConflictAutoResolved
			c.Strategy = &strategy
			resolver := policyResolver
			c.ResolvedBy = &resolver
			resolvedAt := now
			c.ResolvedAt = &resolvedAt
			s.publishResolved(ctx, *c)
		}
	}

	s.publishConflictDetected(ctx, proposal, conflicts)
	return conflicts, nil
}

// policyResolver names the engine itself as the resolver of policy-driven
// auto resolutions.
const policyResolver = "engine/policy"

func (s *ChangeService) publishApplied(ctx context.Context, proposal domain.ChangeProposal, origin domain.ChangeOrigin, result *domain.ChangeResult) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventChangeApplied,
		EntityID:  proposal.EntityID,
		Actor:     proposal.Actor,
		Timestamp: time.Now().UTC(),
		Payload: events.ChangeAppliedPayload{
			NewVersion:    result.NewVersion,
			AppliedFields: result.AppliedFields,
			Origin:        origin,
			Outcome:       result.Outcome,
		},
	})
}

func (s *ChangeService) publishConflictDetected(ctx context.Context, proposal domain.ChangeProposal, conflicts []domain.Conflict) {
	if s.dispatcher == nil {
		return
	}
	ids := make([]string, 0, len(conflicts))
	fields := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID)
		fields = append(fields, c.FieldName)
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventConflictDetected,
		EntityID:  proposal.EntityID,
		Actor:     proposal.Actor,
		Timestamp: time.Now().UTC(),
		Payload: events.ConflictDetectedPayload{
			ConflictIDs: ids,
			FieldNames:  fields,
			BaseVersion: proposal.BaseVersion,
		},
	})
}

func (s *ChangeService) publishResolved(ctx context.Context, conflict domain.Conflict) {
	if s.dispatcher == nil {
		return
	}
	actor := policyResolver
	if conflict.ResolvedBy != nil {
		actor = *conflict.ResolvedBy
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventConflictResolved,
		EntityID:  conflict.EntityID,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Payload: events.ConflictResolvedPayload{
			ConflictID: conflict.ID,
			FieldName:  conflict.FieldName,
			Status:     conflict.Status,
			Strategy:   conflict.Strategy,
		},
	})
}
