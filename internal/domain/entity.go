package domain

import "time"

// Entity is the shared mutable record under collaborative edit.
// The version column is the sole coordination point: every applied change
// advances it by exactly 1 through a conditional update.
type Entity struct {
	ID        string
	Fields    map[string]any
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FieldNames returns the entity's field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	return names
}
