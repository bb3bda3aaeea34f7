package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a document id does not exist in the collection.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a conditional write loses against a concurrent writer.
	ErrConflict = errors.New("document version conflict")
)

// Fields is the semi-structured body of a document. Values must be JSON
// encodable; time.Time values and ServerTimestamp are stored as Unix microseconds.
type Fields map[string]any

type serverTimestamp struct{}

// ServerTimestamp is a field value replaced by the store clock when the write happens.
var ServerTimestamp any = serverTimestamp{}

// Document is a single stored record.
type Document struct {
	ID      string
	Version string
	Fields  Fields
}

// Decode copies the document fields into v using their JSON representation.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Filter is a field equality condition.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from a collection. All filters must match.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
}

// Where appends an equality filter.
func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

// Gateway is the generic contract every document store backend implements.
//
// Update and Delete take the version observed by an earlier Get. An empty version
// makes the write unconditional; a stale one yields ErrConflict.
type Gateway interface {
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id, version string, fields Fields) error
	Delete(ctx context.Context, collection, id, version string) error
	Close() error
}

// Micros converts t to the stored timestamp representation.
func Micros(t time.Time) int64 {
	return t.UnixMicro()
}

// FromMicros converts a stored timestamp back to UTC time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// Resolve returns a copy of fields with ServerTimestamp and time values replaced
// by their stored representation. Backends call it before encoding.
func Resolve(fields Fields, now time.Time) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case serverTimestamp:
			out[k] = Micros(now)
		case time.Time:
			out[k] = Micros(val)
		case *time.Time:
			if val == nil {
				out[k] = nil
			} else {
				out[k] = Micros(*val)
			}
		default:
			out[k] = v
		}
	}
	return out
}

// Merge applies patch on top of base, returning a new map. Nil values are kept
// so that a field can be cleared.
func Merge(base, patch Fields) Fields {
	out := make(Fields, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
