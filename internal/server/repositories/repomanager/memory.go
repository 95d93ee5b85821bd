package repomanager

import (
	"context"
	"database/sql"

	"github.com/kollectcare/trialsync/internal/dbx"
	"github.com/kollectcare/trialsync/internal/server/repositories/documents"
	"github.com/kollectcare/trialsync/internal/server/repositories/users"
)

// MemoryRepositoryManager vends in-memory repositories. Tests use it to
// exercise services and handlers without PostgreSQL.
type MemoryRepositoryManager struct {
	users     *users.MemoryRepository
	documents *documents.MemoryRepository
}

func NewMemoryRepositoryManager() RepositoryManager {
	return &MemoryRepositoryManager{
		users:     users.NewMemoryRepository(),
		documents: documents.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

func (m *MemoryRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return m.users
}

func (m *MemoryRepositoryManager) Documents(db dbx.DBTX) documents.Repository {
	return m.documents
}
