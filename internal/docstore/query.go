package docstore

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Apply filters and orders docs in memory. Backends without native field
// queries use it after loading a collection. Equal sort values fall back to
// document id in the same direction.
func Apply(docs []Document, q Query) []Document {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		filters[i] = Filter{Field: f.Field, Value: normalize(f.Value)}
	}

	out := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if matches(doc, filters) {
			out = append(out, doc)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if q.Descending {
				a, b = b, a
			}
			va, vb := a.Fields[q.OrderBy], b.Fields[q.OrderBy]
			if less(va, vb) {
				return true
			}
			if less(vb, va) {
				return false
			}
			return a.ID < b.ID
		})
	}
	return out
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc.Fields[f.Field]
		if !ok || !reflect.DeepEqual(normalize(v), f.Value) {
			return false
		}
	}
	return true
}

// normalize maps a value onto the shape it has after a JSON round trip.
func normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64:
		return val
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// less orders missing values first, then numbers, then strings.
func less(a, b any) bool {
	a, b = normalize(a), normalize(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra < rb
	}
	switch av := a.(type) {
	case float64:
		return av < b.(float64)
	case string:
		return av < b.(string)
	case bool:
		return !av && b.(bool)
	}
	return false
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}
