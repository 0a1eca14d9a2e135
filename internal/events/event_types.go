package events

import (
	"time"

	"github.com/spec-kit/collab-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventChangeApplied    EventType = "change_applied"
	EventConflictDetected EventType = "conflict_detected"
	EventConflictResolved EventType = "conflict_resolved"
	EventBulkCompleted    EventType = "bulk_completed"
	EventSessionStarted   EventType = "session_started"
	EventSessionEnded     EventType = "session_ended"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	EntityID  string      `json:"entity_id"`
	Actor     string      `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ChangeAppliedPayload payload.
type ChangeAppliedPayload struct {
	NewVersion    int64                `json:"new_version"`
	AppliedFields []string             `json:"applied_fields"`
	Origin        domain.ChangeOrigin  `json:"origin"`
	Outcome       domain.ChangeOutcome `json:"outcome"`
}

// ConflictDetectedPayload payload.
type ConflictDetectedPayload struct {
	ConflictIDs []string `json:"conflict_ids"`
	FieldNames  []string `json:"field_names"`
	BaseVersion int64    `json:"base_version"`
}

// ConflictResolvedPayload payload.
type ConflictResolvedPayload struct {
	ConflictID string                     `json:"conflict_id"`
	FieldName  string                     `json:"field_name"`
	Status     domain.ConflictStatus      `json:"status"`
	Strategy   *domain.ResolutionStrategy `json:"strategy,omitempty"`
}

// BulkCompletedPayload payload.
type BulkCompletedPayload struct {
	BulkID    string                       `json:"bulk_id"`
	Counts    map[domain.ChangeOutcome]int `json:"counts"`
	ItemTotal int                          `json:"item_total"`
}

// SessionPayload payload for session lifecycle events.
type SessionPayload struct {
	SessionID string `json:"session_id"`
}
