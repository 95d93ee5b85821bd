package models

import "time"

// Draft is a locally saved, non-validated payload that is never queued for
// sync. Keyed by form id so a half-finished form can be reopened later.
type Draft struct {
	FormID           string
	PatientID        string
	DataType         DataType
	Payload          Document
	ValidationErrors []string
	SavedAt          time.Time
}
