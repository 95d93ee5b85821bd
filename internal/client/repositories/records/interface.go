package records

import (
	"context"

	"github.com/kollectcare/trialsync/internal/client/models"
)

// Repository describes CRUD operations for consolidated patient records in
// the local store. Implementations are backed by SQLite and accept either a
// plain handle or a transaction via dbx.DBTX.
type Repository interface {
	// Get returns a record by id, or common.ErrorNotFound.
	Get(ctx context.Context, patientID string) (*models.PatientRecord, error)

	// Put upserts the whole record. Field-group merging happens above the
	// repository, inside the store's save transaction.
	Put(ctx context.Context, record *models.PatientRecord) error

	// ListByOwner returns all records belonging to a doctor, most
	// recently updated first.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PatientRecord, error)

	// Rename rewrites a record's key (delete-then-insert). Used for
	// temporary-id migration; must run inside the caller's transaction.
	Rename(ctx context.Context, oldID, newID string) error

	// DeleteAll wipes every record. Only the sign-out path calls this.
	DeleteAll(ctx context.Context) error
}
