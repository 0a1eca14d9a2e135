package domain

import "time"

// ConflictStatus enumerates conflict lifecycle states.
type ConflictStatus string

const (
	ConflictUnresolved       ConflictStatus = "unresolved"
	ConflictAutoResolved     ConflictStatus = "auto-resolved"
	ConflictManuallyResolved ConflictStatus = "manually-resolved"
)

// ResolutionStrategy enumerates built-in resolution strategies.
type ResolutionStrategy string

const (
	StrategyLastWriterWins  ResolutionStrategy = "last-writer-wins"
	StrategyFirstWriterWins ResolutionStrategy = "first-writer-wins"
	StrategyRejectAndNotify ResolutionStrategy = "reject-and-notify"
)

// ValidStrategy reports whether s names a built-in strategy.
func ValidStrategy(s ResolutionStrategy) bool {
	switch s {
	case StrategyLastWriterWins, StrategyFirstWriterWins, StrategyRejectAndNotify:
		return true
	}
	return false
}

// Conflict records a field-level collision between two concurrent edits.
// TheirsValue is what the concurrent writer stored, OursValue the losing
// proposer's value, BaseValue the shared value at the proposal's base
// version. Conflicts are never deleted.
type Conflict struct {
	ID          string
	EntityID    string
	FieldName   string
	BaseVersion int64
	BaseValue   any
	TheirsValue any
	OursValue   any
	ProposedBy  string
	Status      ConflictStatus
	Strategy    *ResolutionStrategy
	ResolvedBy  *string
	ResolvedAt  *time.Time
	CreatedAt   time.Time
}

// Open reports whether the conflict still awaits resolution.
func (c *Conflict) Open() bool {
	return c.Status == ConflictUnresolved
}
