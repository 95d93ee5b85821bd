// Package remote defines the contract with the remote document store and
// implements it over HTTP/JSON with WebSocket change subscriptions.
package remote

import (
	"context"

	"github.com/kollectcare/trialsync/internal/client/models"
)

// PatientCollection is the remote collection patient documents live in.
const PatientCollection = "patients"

// Store is the opaque remote document database the flush engine writes to.
type Store interface {
	// Read returns the current document for a patient, or
	// common.ErrorNotFound when the document does not exist yet.
	Read(ctx context.Context, patientID string) (models.Document, error)

	// Update applies a partial write: only the supplied top-level field
	// groups are touched on the remote document.
	Update(ctx context.Context, patientID string, fields models.Document) error

	// Create inserts a new document and returns the server-assigned id.
	Create(ctx context.Context, collection string, doc models.Document) (string, error)
}

// Unsubscribe tears down one change subscription. It is synchronous (the
// callback will not fire after it returns) and idempotent.
type Unsubscribe func()

// Subscriber delivers remote change notifications for a single record.
type Subscriber interface {
	Subscribe(ctx context.Context, patientID string, onChange func(models.Document)) (Unsubscribe, error)
}
