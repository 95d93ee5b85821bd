package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/dbx"
	"github.com/kollectcare/trialsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.PatientDocument, error) {
	query :=
		`SELECT id, owner_id, data, version, checksum, updated_at, created_at
		 FROM patient_documents
		 WHERE id = $1
		 `

	doc := &models.PatientDocument{}
	var data []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.OwnerID, &data, &doc.Version, &doc.Checksum, &doc.UpdatedAt, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(data, &doc.Data); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return doc, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.PatientDocument, error) {
	query :=
		`SELECT id, owner_id, data, version, checksum, updated_at, created_at
		 FROM patient_documents
		 WHERE owner_id = $1
		 ORDER BY updated_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var docs []*models.PatientDocument
	for rows.Next() {
		doc := &models.PatientDocument{}
		var data []byte
		if err := rows.Scan(&doc.ID, &doc.OwnerID, &data, &doc.Version, &doc.Checksum, &doc.UpdatedAt, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if err := json.Unmarshal(data, &doc.Data); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return docs, nil
}

func (r *PostgresRepository) Create(ctx context.Context, doc *models.PatientDocument) error {
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	query :=
		`INSERT INTO patient_documents (id, owner_id, data, version, checksum, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		doc.ID, doc.OwnerID, data, doc.Version, doc.Checksum, doc.UpdatedAt).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, doc *models.PatientDocument) error {
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	query :=
		`INSERT INTO patient_documents (id, owner_id, data, version, checksum, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   data = EXCLUDED.data,
		   version = EXCLUDED.version,
		   checksum = EXCLUDED.checksum,
		   updated_at = EXCLUDED.updated_at
		 RETURNING created_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		doc.ID, doc.OwnerID, data, doc.Version, doc.Checksum, doc.UpdatedAt).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
