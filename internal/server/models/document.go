package models

import "time"

// PatientDocument is one patient record as the server stores it: the client
// content document verbatim in Data, with the sync bookkeeping mirrored into
// columns so queries never have to reach into the JSON.
type PatientDocument struct {
	ID        string
	OwnerID   string
	Data      map[string]any
	Version   int64
	Checksum  string
	UpdatedAt time.Time
	CreatedAt time.Time
}
