package domain

// ChangeOrigin captures what produced a version transition.
type ChangeOrigin string

const (
	OriginDirect             ChangeOrigin = "direct"
	OriginAutoMerge          ChangeOrigin = "auto-merge"
	OriginConflictResolution ChangeOrigin = "conflict-resolution"
	OriginBulk               ChangeOrigin = "bulk"
)

// ChangeProposal is a client-submitted set of field changes against the
// version the client last read. Ephemeral; never persisted as-is.
type ChangeProposal struct {
	EntityID       string
	BaseVersion    int64
	FieldChanges   map[string]any
	Actor          string
	IdempotencyKey string
}

// FieldNames returns the proposed field names.
func (p ChangeProposal) FieldNames() []string {
	names := make([]string, 0, len(p.FieldChanges))
	for name := range p.FieldChanges {
		names = append(names, name)
	}
	return names
}

// ChangeOutcome classifies the result of processing one proposal.
type ChangeOutcome string

const (
	OutcomeApplied    ChangeOutcome = "applied"
	OutcomeAutoMerged ChangeOutcome = "auto-merged"
	OutcomeConflict   ChangeOutcome = "conflict"
	OutcomeRejected   ChangeOutcome = "rejected"
)

// ChangeResult reports what happened to a proposal. NewVersion is set when
// any fields were applied; with outcome conflict it reflects the partial
// auto-merge of the non-colliding fields, and is zero when nothing applied.
type ChangeResult struct {
	Outcome       ChangeOutcome
	NewVersion    int64
	AppliedFields []string
	Conflicts     []Conflict
	RejectReason  string
}
