package repository

import "encoding/json"

// encodeJSON prepares an arbitrary field value for a jsonb column. Nil maps
// to SQL NULL so absent prior values stay distinguishable from JSON null.
func encodeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
