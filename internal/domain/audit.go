package domain

import "time"

// AuditEntry is one immutable record of a single field change across one
// version transition. Entries for an entity are totally ordered by
// VersionAfter; VersionAfter is always VersionBefore+1.
type AuditEntry struct {
	ID            string
	EntityID      string
	VersionBefore int64
	VersionAfter  int64
	FieldName     string
	OldValue      any
	NewValue      any
	Actor         string
	Origin        ChangeOrigin
	CreatedAt     time.Time
}

// FieldDiff describes one field's transition inside a change.
type FieldDiff struct {
	FieldName string
	OldValue  any
	NewValue  any
}

// VersionSnapshot is a periodic full-state capture used to shortcut replay.
// Derived data: it can always be regenerated from the audit trail.
type VersionSnapshot struct {
	EntityID  string
	Version   int64
	Fields    map[string]any
	CreatedAt time.Time
}
