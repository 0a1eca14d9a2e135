package domain

import "time"

// BulkItemResult is the outcome of one proposal within a bulk submission.
// ItemIndex preserves submission order; ConflictIDs is populated when the
// outcome is conflict.
type BulkItemResult struct {
	ItemIndex   int
	EntityID    string
	Outcome     ChangeOutcome
	Detail      string
	NewVersion  int64
	ConflictIDs []string
}

// BulkOperation groups proposals submitted together. It is finalized once
// every item has an outcome; one item's failure never rolls back another's.
type BulkOperation struct {
	ID          string
	SubmittedBy string
	StartedAt   time.Time
	CompletedAt *time.Time
	Items       []BulkItemResult
}

// Counts tallies item outcomes by kind.
func (b *BulkOperation) Counts() map[ChangeOutcome]int {
	counts := make(map[ChangeOutcome]int, 4)
	for _, item := range b.Items {
		counts[item.Outcome]++
	}
	return counts
}
