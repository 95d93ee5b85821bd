package documents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/server/models"
)

// MemoryRepository is an in-memory Repository used in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]*models.PatientDocument
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: map[string]*models.PatientDocument{}}
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.PatientDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.PatientDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var docs []*models.PatientDocument
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			copied := *doc
			docs = append(docs, &copied)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	return docs, nil
}

func (r *MemoryRepository) Create(ctx context.Context, doc *models.PatientDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.CreatedAt = time.Now().UTC()
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, doc *models.PatientDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.docs[doc.ID]; ok {
		doc.CreatedAt = existing.CreatedAt
	} else {
		doc.CreatedAt = time.Now().UTC()
	}
	copied := *doc
	r.docs[doc.ID] = &copied
	return nil
}
