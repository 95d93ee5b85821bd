package documents

import (
	"context"

	"github.com/kollectcare/trialsync/internal/server/models"
)

// Repository persists patient documents.
type Repository interface {
	Get(ctx context.Context, id string) (*models.PatientDocument, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.PatientDocument, error)
	Create(ctx context.Context, doc *models.PatientDocument) error
	// Upsert replaces the document's content and bookkeeping, inserting it
	// when absent.
	Upsert(ctx context.Context, doc *models.PatientDocument) error
}
