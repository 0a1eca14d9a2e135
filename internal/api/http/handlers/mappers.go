package handlers

import (
	"github.com/spec-kit/collab-engine/internal/api/dto"
	"github.com/spec-kit/collab-engine/internal/domain"
	"github.com/spec-kit/collab-engine/internal/service"
)

func entityState(entity *domain.Entity) dto.EntityStateResponse {
	return dto.EntityStateResponse{
		ID:        entity.ID,
		Fields:    entity.Fields,
		Version:   entity.Version,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}

func conflictResponse(c domain.Conflict) dto.ConflictResponse {
	return dto.ConflictResponse{
		ID:          c.ID,
		EntityID:    c.EntityID,
		FieldName:   c.FieldName,
		BaseVersion: c.BaseVersion,
		BaseValue:   c.BaseValue,
		TheirsValue: c.TheirsValue,
		OursValue:   c.OursValue,
		ProposedBy:  c.ProposedBy,
		Status:      c.Status,
		Strategy:    c.Strategy,
		ResolvedBy:  c.ResolvedBy,
		ResolvedAt:  c.ResolvedAt,
		CreatedAt:   c.CreatedAt,
	}
}

func conflictResponses(conflicts []domain.Conflict) []dto.ConflictResponse {
	items := make([]dto.ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		items = append(items, conflictResponse(c))
	}
	return items
}

func changeResultResponse(result *domain.ChangeResult) dto.ChangeResultResponse {
	return dto.ChangeResultResponse{
		Outcome:       result.Outcome,
		NewVersion:    result.NewVersion,
		AppliedFields: result.AppliedFields,
		Conflicts:     conflictResponses(result.Conflicts),
		RejectReason:  result.RejectReason,
	}
}

func resolutionOutcomeResponse(outcome *service.ResolutionOutcome) dto.ResolutionOutcomeResponse {
	return dto.ResolutionOutcomeResponse{
		Conflict:        conflictResponse(outcome.Conflict),
		AlreadyResolved: outcome.AlreadyResolved,
		Applied:         outcome.Applied,
		NewVersion:      outcome.NewVersion,
		FreshConflicts:  conflictResponses(outcome.FreshConflicts),
	}
}

func auditEntryResponse(entry domain.AuditEntry) dto.AuditEntryResponse {
	return dto.AuditEntryResponse{
		ID:            entry.ID,
		EntityID:      entry.EntityID,
		VersionBefore: entry.VersionBefore,
		VersionAfter:  entry.VersionAfter,
		FieldName:     entry.FieldName,
		OldValue:      entry.OldValue,
		NewValue:      entry.NewValue,
		Actor:         entry.Actor,
		Origin:        entry.Origin,
		CreatedAt:     entry.CreatedAt,
	}
}

func sessionResponse(session domain.EditingSession) dto.SessionResponse {
	return dto.SessionResponse{
		ID:              session.ID,
		EntityID:        session.EntityID,
		Actor:           session.Actor,
		StartedAt:       session.StartedAt,
		LastHeartbeatAt: session.LastHeartbeatAt,
		ExpiresAt:       session.ExpiresAt,
	}
}

func bulkOperationResponse(op *domain.BulkOperation) dto.BulkOperationResponse {
	items := make([]dto.BulkItemResponse, 0, len(op.Items))
	for _, item := range op.Items {
		items = append(items, dto.BulkItemResponse{
			ItemIndex:   item.ItemIndex,
			EntityID:    item.EntityID,
			Outcome:     item.Outcome,
			Detail:      item.Detail,
			NewVersion:  item.NewVersion,
			ConflictIDs: item.ConflictIDs,
		})
	}
	return dto.BulkOperationResponse{
		ID:          op.ID,
		SubmittedBy: op.SubmittedBy,
		StartedAt:   op.StartedAt,
		CompletedAt: op.CompletedAt,
		Items:       items,
	}
}
