package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/logging"
	"github.com/kollectcare/trialsync/internal/server/archive"
	"github.com/kollectcare/trialsync/internal/server/hub"
	"github.com/kollectcare/trialsync/internal/server/models"
	"github.com/kollectcare/trialsync/internal/server/repositories/repomanager"
)

// DocumentService owns the patient document store. Every accepted write is
// broadcast to watchers and archived; the stored Data is the client's
// content document verbatim, sync fields included.
type DocumentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hub         *hub.Hub
	archiver    archive.Archiver
	logger      logging.Logger
}

// NewDocumentService constructs a DocumentService. The archiver may be nil
// when version archiving is disabled.
func NewDocumentService(db *sql.DB, m repomanager.RepositoryManager, h *hub.Hub, a archive.Archiver, logger logging.Logger) *DocumentService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &DocumentService{db: db, repomanager: m, hub: h, archiver: a, logger: logger}
}

// Get loads one document, enforcing ownership.
func (s *DocumentService) Get(ctx context.Context, ownerID, id string) (*models.PatientDocument, error) {
	doc, err := s.repomanager.Documents(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return doc, nil
}

// List returns the caller's documents, most recently updated first.
func (s *DocumentService) List(ctx context.Context, ownerID string) ([]*models.PatientDocument, error) {
	return s.repomanager.Documents(s.db).ListByOwner(ctx, ownerID)
}

// Create stores a new document under a server-assigned id and returns it.
func (s *DocumentService) Create(ctx context.Context, ownerID string, data map[string]any) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", common.ErrValidation)
	}

	doc := buildDocument(uuid.NewString(), ownerID, data)
	if err := s.repomanager.Documents(s.db).Create(ctx, doc); err != nil {
		return "", err
	}

	s.afterWrite(ctx, doc)
	return doc.ID, nil
}

// Update merges the given top-level fields into the stored content,
// inserting the document when absent. Field groups the caller does not
// mention survive untouched. A document created by another owner is
// invisible here: the write is rejected as not found.
func (s *DocumentService) Update(ctx context.Context, ownerID, id string, data map[string]any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty document", common.ErrValidation)
	}

	repo := s.repomanager.Documents(s.db)
	existing, err := repo.Get(ctx, id)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	if existing != nil && existing.OwnerID != ownerID {
		return common.ErrorNotFound
	}

	merged := data
	if existing != nil {
		merged = make(map[string]any, len(existing.Data)+len(data))
		for k, v := range existing.Data {
			merged[k] = v
		}
		for k, v := range data {
			merged[k] = v
		}
	}

	doc := buildDocument(id, ownerID, merged)
	if err := repo.Upsert(ctx, doc); err != nil {
		return err
	}

	s.afterWrite(ctx, doc)
	return nil
}

// afterWrite notifies watchers and archives the accepted version.
func (s *DocumentService) afterWrite(ctx context.Context, doc *models.PatientDocument) {
	s.hub.Broadcast(doc.ID, doc.Data)

	if s.archiver == nil {
		return
	}
	data, err := json.Marshal(doc.Data)
	if err != nil {
		s.logger.Warn(ctx, "archive skipped: unserializable document", "doc_id", doc.ID)
		return
	}
	if err := s.archiver.Archive(ctx, doc.OwnerID, doc.ID, doc.Version, data); err != nil {
		s.logger.Warn(ctx, "archive failed", "doc_id", doc.ID, "version", doc.Version, "error", err)
	}
}

// buildDocument mirrors the sync bookkeeping carried inside the content
// into queryable columns.
func buildDocument(id, ownerID string, data map[string]any) *models.PatientDocument {
	doc := &models.PatientDocument{
		ID:        id,
		OwnerID:   ownerID,
		Data:      data,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}

	switch v := data[common.VersionField].(type) {
	case float64:
		doc.Version = int64(v)
	case int64:
		doc.Version = v
	case int:
		doc.Version = int64(v)
	}
	if c, ok := data[common.ChecksumField].(string); ok {
		doc.Checksum = c
	}
	if raw, ok := data["updated_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			doc.UpdatedAt = ts.UTC()
		}
	}
	return doc
}
