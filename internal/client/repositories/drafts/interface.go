package drafts

import (
	"context"

	"github.com/kollectcare/trialsync/internal/client/models"
)

// Repository stores draft form payloads keyed by form id. Drafts never
// reach the sync queue.
type Repository interface {
	// Put upserts a draft by form id.
	Put(ctx context.Context, draft *models.Draft) error

	// Get returns a draft by form id, or common.ErrorNotFound.
	Get(ctx context.Context, formID string) (*models.Draft, error)

	// ListByPatient returns all drafts for a patient, newest first.
	ListByPatient(ctx context.Context, patientID string) ([]*models.Draft, error)

	// Delete removes a draft. Deleting an absent draft is not an error.
	Delete(ctx context.Context, formID string) error

	// DeleteAll wipes all drafts.
	DeleteAll(ctx context.Context) error
}
