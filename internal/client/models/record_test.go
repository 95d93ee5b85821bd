package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFollowup_ByFormID(t *testing.T) {
	rec := &PatientRecord{
		Followups: []Document{
			{FieldFormID: "f1", FieldVisitNumber: float64(1)},
			{FieldFormID: "f2", FieldVisitNumber: float64(2)},
		},
	}

	assert.Equal(t, 1, rec.FindFollowup(Document{FieldFormID: "f2"}))
	assert.Equal(t, -1, rec.FindFollowup(Document{FieldFormID: "f3"}))
}

func TestFindFollowup_ByVisitNumber(t *testing.T) {
	rec := &PatientRecord{
		Followups: []Document{
			{FieldVisitNumber: float64(1)},
			{FieldVisitNumber: float64(2)},
		},
	}

	// No form_id on the incoming doc: visit_number decides.
	assert.Equal(t, 0, rec.FindFollowup(Document{FieldVisitNumber: 1}))
	assert.Equal(t, -1, rec.FindFollowup(Document{FieldVisitNumber: 7}))
	assert.Equal(t, -1, rec.FindFollowup(Document{"note": "no keys at all"}))
}

func TestFindFollowup_FormIDWinsOverVisitNumber(t *testing.T) {
	rec := &PatientRecord{
		Followups: []Document{
			{FieldFormID: "f1", FieldVisitNumber: float64(1)},
		},
	}

	// Same visit number but a different form id is a different visit.
	assert.Equal(t, -1, rec.FindFollowup(Document{FieldFormID: "other", FieldVisitNumber: 1}))
}

func TestRemoteDocument_RoundTrip(t *testing.T) {
	rec := &PatientRecord{
		PatientID:   "p1",
		PatientInfo: Document{"name": "A", "dob": "1980-01-01"},
		Baseline:    Document{"weight": float64(80)},
		Followups: []Document{
			{FieldVisitNumber: float64(1), "weight": float64(79)},
		},
	}

	doc := rec.RemoteDocument()
	assert.Equal(t, "A", doc["name"])

	info, baseline, followups := SplitRemoteDocument(doc)
	assert.Equal(t, rec.PatientInfo, info)
	assert.Equal(t, rec.Baseline, baseline)
	require.Len(t, followups, 1)
	assert.Equal(t, rec.Followups[0], followups[0])
}

func TestSplitRemoteDocument_StripsSyncFields(t *testing.T) {
	info, _, _ := SplitRemoteDocument(Document{
		"name":           "A",
		"_version":       float64(3),
		"_sync_checksum": "abc",
	})
	assert.Equal(t, Document{"name": "A"}, info)
}

func TestRemoteVersion(t *testing.T) {
	assert.Equal(t, int64(3), RemoteVersion(Document{"_version": float64(3)}))
	assert.Equal(t, int64(5), RemoteVersion(Document{"_version": int64(5)}))
	assert.Equal(t, int64(0), RemoteVersion(Document{}))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, (&PatientRecord{PatientID: "p"}).IsEmpty())
	assert.False(t, (&PatientRecord{PatientInfo: Document{"name": "A"}}).IsEmpty())
	assert.False(t, (&PatientRecord{Baseline: Document{}}).IsEmpty())
}

func TestDocument_Clone_Independent(t *testing.T) {
	orig := Document{"nested": map[string]any{"k": "v"}}
	clone := orig.Clone()

	clone["nested"].(map[string]any)["k"] = "changed"
	assert.Equal(t, "v", orig["nested"].(map[string]any)["k"])
}

func TestNewQueueID_Format(t *testing.T) {
	id := NewQueueID()
	assert.Regexp(t, `^queue_\d+_[0-9a-f]{16}$`, id)
	assert.NotEqual(t, id, NewQueueID())
}

func TestTempID(t *testing.T) {
	id := NewTempPatientID()
	assert.True(t, IsTempID(id))
	assert.False(t, IsTempID("server-assigned"))
}
