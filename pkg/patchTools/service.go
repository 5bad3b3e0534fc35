package patchtools

// Data is a single field assignment from a partial update request.
type Data struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Apply returns a copy of before with every patch entry assigned on top.
// Later entries for the same field win. before is not modified.
func Apply(before map[string]any, patch []Data) map[string]any {
	after := make(map[string]any, len(before)+len(patch))
	for k, v := range before {
		after[k] = v
	}
	for _, d := range patch {
		if d.Field == "" {
			continue
		}
		after[d.Field] = d.Value
	}
	return after
}

// FromRequest extracts patch entries from a decoded request body of the
// form {"data": [{"field": "...", "value": ...}, ...]}. Malformed items are
// skipped.
func FromRequest(req map[string]any) []Data {
	items, ok := req["data"].([]any)
	if !ok {
		return nil
	}

	var out []Data
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		field, fOk := m["field"].(string)
		value, vOk := m["value"]
		if fOk && vOk {
			out = append(out, Data{Field: field, Value: value})
		}
	}

	return out
}
