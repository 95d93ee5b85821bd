// Package models defines the client-side data types the sync engine
// persists and ships: the generic form document, the consolidated patient
// record, sync queue entries and drafts.
package models

import (
	"encoding/json"
	"time"
)

// Document is a loosely-typed form payload. The clinical schema is opaque to
// the sync engine; the only fields it ever reads are form_id, visit_number,
// status and updated_at.
type Document map[string]any

// Well-known document fields.
const (
	FieldFormID      = "form_id"
	FieldVisitNumber = "visit_number"
	FieldStatus      = "status"
	FieldUpdatedAt   = "updated_at"
)

// Form statuses.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// FormID returns the document's form_id, or "" if absent.
func (d Document) FormID() string {
	s, _ := d[FieldFormID].(string)
	return s
}

// VisitNumber returns the document's visit_number and whether it is present.
// JSON numbers decode as float64, so both representations are accepted.
func (d Document) VisitNumber() (int, bool) {
	switch v := d[FieldVisitNumber].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Status returns the document's status field, or "" if absent.
func (d Document) Status() string {
	s, _ := d[FieldStatus].(string)
	return s
}

// UpdatedAt parses the document's updated_at as RFC 3339. The zero time is
// returned when the field is absent or malformed, which orders the document
// before any real timestamp.
func (d Document) UpdatedAt() time.Time {
	s, _ := d[FieldUpdatedAt].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a deep copy made through a JSON round trip. Used wherever a
// document crosses a goroutine boundary.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
