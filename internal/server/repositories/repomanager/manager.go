package repomanager

import (
	"context"
	"database/sql"

	"github.com/kollectcare/trialsync/internal/dbx"
	"github.com/kollectcare/trialsync/internal/server/repositories/documents"
	"github.com/kollectcare/trialsync/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a connection
// or transaction, plus the schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Documents(db dbx.DBTX) documents.Repository
}
