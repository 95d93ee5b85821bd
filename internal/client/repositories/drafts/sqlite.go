// Package drafts implements draft storage over SQLite.
package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put upserts a draft by form id.
func (r *SQLiteRepository) Put(ctx context.Context, draft *models.Draft) error {
	payload, err := json.Marshal(draft.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	validationErrors, err := json.Marshal(draft.ValidationErrors)
	if err != nil {
		return fmt.Errorf("failed to marshal validation errors: %w", err)
	}

	query := `INSERT INTO drafts (form_id, patient_id, data_type, payload, validation_errors, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(form_id) DO UPDATE SET
			patient_id = excluded.patient_id,
			data_type = excluded.data_type,
			payload = excluded.payload,
			validation_errors = excluded.validation_errors,
			saved_at = excluded.saved_at
	`
	_, err = r.db.ExecContext(ctx, query,
		draft.FormID, draft.PatientID, string(draft.DataType), string(payload),
		string(validationErrors), draft.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: failed to upsert draft: %v", common.ErrStorage, err)
	}
	return nil
}

// Get returns a draft by form id, or common.ErrorNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, formID string) (*models.Draft, error) {
	query := `SELECT form_id, patient_id, data_type, payload, validation_errors, saved_at FROM drafts WHERE form_id = ?`
	row := r.db.QueryRowContext(ctx, query, formID)

	draft, err := scanDraft(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select draft: %v", common.ErrStorage, err)
	}
	return draft, nil
}

// ListByPatient returns all drafts for a patient, newest first.
func (r *SQLiteRepository) ListByPatient(ctx context.Context, patientID string) ([]*models.Draft, error) {
	query := `SELECT form_id, patient_id, data_type, payload, validation_errors, saved_at
		FROM drafts WHERE patient_id = ? ORDER BY saved_at DESC`
	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select drafts: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []*models.Draft
	for rows.Next() {
		draft, err := scanDraft(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, draft)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a draft; absent drafts are ignored.
func (r *SQLiteRepository) Delete(ctx context.Context, formID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE form_id = ?`, formID); err != nil {
		return fmt.Errorf("%w: failed to delete draft: %v", common.ErrStorage, err)
	}
	return nil
}

// DeleteAll wipes all drafts.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drafts`); err != nil {
		return fmt.Errorf("%w: failed to wipe drafts: %v", common.ErrStorage, err)
	}
	return nil
}

func scanDraft(scan func(dest ...any) error) (*models.Draft, error) {
	var (
		draft            models.Draft
		dataType         string
		payload          string
		validationErrors string
		savedAt          string
	)
	if err := scan(&draft.FormID, &draft.PatientID, &dataType, &payload, &validationErrors, &savedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &draft.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if err := json.Unmarshal([]byte(validationErrors), &draft.ValidationErrors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal validation errors: %w", err)
	}
	draft.DataType = models.DataType(dataType)
	t, err := time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored time %q: %w", savedAt, err)
	}
	draft.SavedAt = t
	return &draft, nil
}
