package models

import "time"

// DataType classifies which field group of a patient record a payload
// belongs to.
type DataType string

const (
	DataTypePatient  DataType = "patient"
	DataTypeBaseline DataType = "baseline"
	DataTypeFollowup DataType = "followup"
)

// Valid reports whether t is one of the known data types.
func (t DataType) Valid() bool {
	switch t {
	case DataTypePatient, DataTypeBaseline, DataTypeFollowup:
		return true
	}
	return false
}

// SyncMetadata tracks a record's synchronization state.
type SyncMetadata struct {
	// LastSyncedAt is the time of the last confirmed remote write or
	// merge, nil while the record has never synced.
	LastSyncedAt *time.Time

	// IsDirty marks local state not yet confirmed durable remotely.
	IsDirty bool

	// SyncError holds the most recent flush error, nil when clean.
	SyncError *string

	// Version is the monotonic counter used for conflict arbitration.
	Version int64
}

// PatientRecord is the unit of storage and synchronization: one consolidated
// document per patient holding demographics, at most one baseline and an
// ordered, append-mostly list of follow-up visits.
type PatientRecord struct {
	// PatientID is the primary key. Initially a locally generated
	// temporary id, rewritten to the server-assigned id after the first
	// successful create.
	PatientID string

	// OwnerID identifies the doctor the record belongs to. Used to scope
	// queries only, never for ownership transfer.
	OwnerID string

	// PatientInfo holds demographic and administrative fields.
	PatientInfo Document

	// Baseline is the week-0 assessment, nil while absent.
	Baseline Document

	// Followups is ordered by visit. Entries are appended or replaced in
	// place by matching key, never reordered.
	Followups []Document

	Metadata SyncMetadata

	// UpdatedAt is the time of the last local mutation, compared against
	// remote updated_at by the reconciliation listener.
	UpdatedAt time.Time
}

// FindFollowup locates a follow-up in the record's sequence: first by
// form_id, then by visit_number if the incoming document has no form_id.
// Returns -1 when no entry matches and the document should be appended.
func (r *PatientRecord) FindFollowup(doc Document) int {
	if id := doc.FormID(); id != "" {
		for i, f := range r.Followups {
			if f.FormID() == id {
				return i
			}
		}
		return -1
	}
	if vn, ok := doc.VisitNumber(); ok {
		for i, f := range r.Followups {
			if got, ok := f.VisitNumber(); ok && got == vn {
				return i
			}
		}
	}
	return -1
}

// RemoteDocument assembles the consolidated document shape written to the
// remote store: patient_info at the top level plus the baseline and
// follow-ups field groups.
func (r *PatientRecord) RemoteDocument() Document {
	doc := Document{}
	for k, v := range r.PatientInfo {
		doc[k] = v
	}
	if r.Baseline != nil {
		doc["baseline"] = map[string]any(r.Baseline)
	}
	if len(r.Followups) > 0 {
		followups := make([]any, len(r.Followups))
		for i, f := range r.Followups {
			followups[i] = map[string]any(f)
		}
		doc["followups"] = followups
	}
	return doc
}

// IsEmpty reports whether the record has nothing to contribute to a remote
// write: no demographics, no baseline and no follow-ups.
func (r *PatientRecord) IsEmpty() bool {
	return len(r.PatientInfo) == 0 && r.Baseline == nil && len(r.Followups) == 0
}
