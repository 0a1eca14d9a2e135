package dto

import (
	"time"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// CreateEntityRequest payload.
type CreateEntityRequest struct {
	Fields map[string]any `json:"fields"`
}

// EntityStateResponse is a versioned read of an entity.
type EntityStateResponse struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SubmitChangeRequest payload.
type SubmitChangeRequest struct {
	BaseVersion    int64          `json:"base_version"`
	FieldChanges   map[string]any `json:"field_changes"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// ChangeResultResponse reports the outcome of one proposal.
type ChangeResultResponse struct {
	Outcome       domain.ChangeOutcome `json:"outcome"`
	NewVersion    int64                `json:"new_version,omitempty"`
	AppliedFields []string             `json:"applied_fields,omitempty"`
	Conflicts     []ConflictResponse   `json:"conflicts,omitempty"`
	RejectReason  string               `json:"reject_reason,omitempty"`
}

// ConflictResponse response.
type ConflictResponse struct {
	ID          string                     `json:"id"`
	EntityID    string                     `json:"entity_id"`
	FieldName   string                     `json:"field_name"`
	BaseVersion int64                      `json:"base_version"`
	BaseValue   any                        `json:"base_value"`
	TheirsValue any                        `json:"theirs_value"`
	OursValue   any                        `json:"ours_value"`
	ProposedBy  string                     `json:"proposed_by"`
	Status      domain.ConflictStatus      `json:"status"`
	Strategy    *domain.ResolutionStrategy `json:"strategy,omitempty"`
	ResolvedBy  *string                    `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time                 `json:"resolved_at,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// ResolveConflictRequest payload. Either a strategy or a chosen value must
// be supplied, not both.
type ResolveConflictRequest struct {
	Strategy    string `json:"strategy,omitempty"`
	ChosenValue any    `json:"chosen_value,omitempty"`
	HasChosen   bool   `json:"has_chosen_value,omitempty"`
}

// ResolutionOutcomeResponse response.
type ResolutionOutcomeResponse struct {
	Conflict        ConflictResponse   `json:"conflict"`
	AlreadyResolved bool               `json:"already_resolved"`
	Applied         bool               `json:"applied"`
	NewVersion      int64              `json:"new_version,omitempty"`
	FreshConflicts  []ConflictResponse `json:"fresh_conflicts,omitempty"`
}

// AuditEntryResponse response.
type AuditEntryResponse struct {
	ID            string              `json:"id"`
	EntityID      string              `json:"entity_id"`
	VersionBefore int64               `json:"version_before"`
	VersionAfter  int64               `json:"version_after"`
	FieldName     string              `json:"field_name"`
	OldValue      any                 `json:"old_value"`
	NewValue      any                 `json:"new_value"`
	Actor         string              `json:"actor"`
	Origin        domain.ChangeOrigin `json:"origin"`
	CreatedAt     time.Time           `json:"created_at"`
}

// SessionResponse response.
type SessionResponse struct {
	ID              string    `json:"id"`
	EntityID        string    `json:"entity_id"`
	Actor           string    `json:"actor"`
	StartedAt       time.Time `json:"started_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// SessionPresenceResponse pairs a session with its conflict-risk hint.
type SessionPresenceResponse struct {
	Session              SessionResponse `json:"session"`
	RecentlyTouchedField []string        `json:"recently_touched_fields"`
}

// BulkItemRequest is one proposal inside a bulk submission.
type BulkItemRequest struct {
	EntityID       string         `json:"entity_id"`
	BaseVersion    int64          `json:"base_version"`
	FieldChanges   map[string]any `json:"field_changes"`
	Actor          string         `json:"actor,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// SubmitBulkRequest payload.
type SubmitBulkRequest struct {
	Items []BulkItemRequest `json:"items"`
}

// BulkItemResponse response.
type BulkItemResponse struct {
	ItemIndex   int                  `json:"item_index"`
	EntityID    string               `json:"entity_id"`
	Outcome     domain.ChangeOutcome `json:"outcome"`
	Detail      string               `json:"detail,omitempty"`
	NewVersion  int64                `json:"new_version,omitempty"`
	ConflictIDs []string             `json:"conflict_ids,omitempty"`
}

// BulkOperationResponse response.
type BulkOperationResponse struct {
	ID          string             `json:"id"`
	SubmittedBy string             `json:"submitted_by"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Items       []BulkItemResponse `json:"items"`
}
