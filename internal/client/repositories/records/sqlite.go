// Package records implements the Local Patient Store over SQLite: one
// consolidated row per patient holding demographics, the baseline, the
// follow-up sequence and sync metadata.
package records

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

// WithTx returns a copy of the repository bound to tx, so record reads and
// writes join the store's save transaction.
func (r *SQLiteRepository) WithTx(tx dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

const recordColumns = `patient_id, owner_id, patient_info, baseline, followups, last_synced_at, is_dirty, sync_error, version, updated_at`

// Get returns a record by id, or common.ErrorNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, patientID string) (*models.PatientRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM patients WHERE patient_id = ?`
	row := r.db.QueryRowContext(ctx, query, patientID)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select record: %v", common.ErrStorage, err)
	}
	return rec, nil
}

// Put upserts the whole record by patient id.
func (r *SQLiteRepository) Put(ctx context.Context, record *models.PatientRecord) error {
	info, err := json.Marshal(record.PatientInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal patient_info: %w", err)
	}
	followups, err := json.Marshal(record.Followups)
	if err != nil {
		return fmt.Errorf("failed to marshal followups: %w", err)
	}
	var baseline any
	if record.Baseline != nil {
		b, err := json.Marshal(record.Baseline)
		if err != nil {
			return fmt.Errorf("failed to marshal baseline: %w", err)
		}
		baseline = string(b)
	}

	query := `INSERT INTO patients (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET
			owner_id = excluded.owner_id,
			patient_info = excluded.patient_info,
			baseline = excluded.baseline,
			followups = excluded.followups,
			last_synced_at = excluded.last_synced_at,
			is_dirty = excluded.is_dirty,
			sync_error = excluded.sync_error,
			version = excluded.version,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		record.PatientID, record.OwnerID, string(info), baseline, string(followups),
		formatNullableTime(record.Metadata.LastSyncedAt), boolToInt(record.Metadata.IsDirty),
		record.Metadata.SyncError, record.Metadata.Version, formatTime(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("%w: failed to upsert record: %v", common.ErrStorage, err)
	}
	return nil
}

// ListByOwner returns all records for a doctor, most recently updated first.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.PatientRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM patients WHERE owner_id = ? ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select records: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []*models.PatientRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Rename rewrites the record key from oldID to newID within the caller's
// transaction: the row is re-inserted under the new key and the old row
// deleted, so the record is never duplicated and never lost.
func (r *SQLiteRepository) Rename(ctx context.Context, oldID, newID string) error {
	rec, err := r.Get(ctx, oldID)
	if err != nil {
		return err
	}
	rec.PatientID = newID
	if err := r.Put(ctx, rec); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE patient_id = ?`, oldID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete old record key: %v", common.ErrStorage, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}

// DeleteAll wipes every record.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM patients`); err != nil {
		return fmt.Errorf("%w: failed to wipe records: %v", common.ErrStorage, err)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*models.PatientRecord, error) {
	var (
		rec          models.PatientRecord
		info         string
		baseline     sql.NullString
		followups    string
		lastSyncedAt sql.NullString
		isDirty      int
		syncError    sql.NullString
		updatedAt    string
	)
	err := scan(&rec.PatientID, &rec.OwnerID, &info, &baseline, &followups,
		&lastSyncedAt, &isDirty, &syncError, &rec.Metadata.Version, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(info), &rec.PatientInfo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patient_info: %w", err)
	}
	if baseline.Valid {
		if err := json.Unmarshal([]byte(baseline.String), &rec.Baseline); err != nil {
			return nil, fmt.Errorf("failed to unmarshal baseline: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(followups), &rec.Followups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal followups: %w", err)
	}

	rec.Metadata.IsDirty = isDirty != 0
	if syncError.Valid {
		rec.Metadata.SyncError = &syncError.String
	}
	if lastSyncedAt.Valid {
		t, err := parseTime(lastSyncedAt.String)
		if err != nil {
			return nil, err
		}
		rec.Metadata.LastSyncedAt = &t
	}
	rec.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
