// Package queue implements the durable sync queue over SQLite.
package queue

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

// WithTx returns a copy of the repository bound to tx.
func (r *SQLiteRepository) WithTx(tx dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: tx}
}

const entryColumns = `id, patient_id, data_type, action, payload, status, retry_count, max_retries, backoff_ms, next_retry_at, last_error, created_at`

// Enqueue inserts a new entry.
func (r *SQLiteRepository) Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	query := `INSERT INTO sync_queue (` + entryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.PatientID, string(entry.DataType), string(entry.Action), string(payload),
		string(entry.Status), entry.RetryCount, entry.MaxRetries, entry.BackoffMs,
		formatTime(entry.NextRetryAt), entry.LastError, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("%w: failed to enqueue entry: %v", common.ErrStorage, err)
	}
	return nil
}

// Pending returns due entries in flush order: creates before updates,
// patient before baseline before followup, oldest first within a class.
func (r *SQLiteRepository) Pending(ctx context.Context, now time.Time) ([]*models.SyncQueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM sync_queue
		WHERE status = ? AND next_retry_at <= ?
		ORDER BY
			CASE action WHEN 'create' THEN 0 ELSE 1 END,
			CASE data_type WHEN 'patient' THEN 0 WHEN 'baseline' THEN 1 ELSE 2 END,
			created_at`
	rows, err := r.db.QueryContext(ctx, query, string(models.EntryPending), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select pending entries: %v", common.ErrStorage, err)
	}
	defer rows.Close()

	var result []*models.SyncQueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// PendingCount counts entries still awaiting a successful sync.
func (r *SQLiteRepository) PendingCount(ctx context.Context) (int, error) {
	return r.countByStatus(ctx, models.EntryPending, models.EntrySyncing)
}

// FailedCount counts entries that exhausted their retries.
func (r *SQLiteRepository) FailedCount(ctx context.Context) (int, error) {
	return r.countByStatus(ctx, models.EntryFailed)
}

func (r *SQLiteRepository) countByStatus(ctx context.Context, statuses ...models.EntryStatus) (int, error) {
	query := `SELECT COUNT(*) FROM sync_queue WHERE status IN (?` // at least one
	args := []any{string(statuses[0])}
	for _, s := range statuses[1:] {
		query += ", ?"
		args = append(args, string(s))
	}
	query += ")"

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count entries: %v", common.ErrStorage, err)
	}
	return n, nil
}

// MarkSyncing flips an entry to syncing.
func (r *SQLiteRepository) MarkSyncing(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.EntrySyncing)
}

// MarkSynced marks an entry as durably applied to the remote store.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, models.EntrySynced)
}

func (r *SQLiteRepository) setStatus(ctx context.Context, id string, status models.EntryStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("%w: failed to update entry status: %v", common.ErrStorage, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return common.ErrorNotFound
	}
	return nil
}

// RecordFailure bumps the retry bookkeeping for one entry. The entry stays
// pending with a doubled, capped backoff until retries are exhausted, then
// flips to failed and waits for a manual retrigger.
func (r *SQLiteRepository) RecordFailure(ctx context.Context, id string, cause string, now time.Time) error {
	entry, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	entry.RetryCount++
	entry.LastError = &cause
	if entry.RetryCount >= entry.MaxRetries {
		entry.Status = models.EntryFailed
	} else {
		entry.Status = models.EntryPending
		entry.BackoffMs = min(entry.BackoffMs*2, models.MaxBackoffMs)
		entry.NextRetryAt = now.Add(time.Duration(entry.BackoffMs) * time.Millisecond)
	}

	query := `UPDATE sync_queue SET status = ?, retry_count = ?, backoff_ms = ?, next_retry_at = ?, last_error = ? WHERE id = ?`
	_, err = r.db.ExecContext(ctx, query,
		string(entry.Status), entry.RetryCount, entry.BackoffMs, formatTime(entry.NextRetryAt), cause, id)
	if err != nil {
		return fmt.Errorf("%w: failed to record failure: %v", common.ErrStorage, err)
	}
	return nil
}

// ResetFailed re-arms failed entries as immediately due.
func (r *SQLiteRepository) ResetFailed(ctx context.Context, now time.Time) error {
	query := `UPDATE sync_queue SET status = ?, retry_count = 0, backoff_ms = ?, next_retry_at = ? WHERE status = ?`
	_, err := r.db.ExecContext(ctx, query,
		string(models.EntryPending), models.InitialBackoffMs, formatTime(now), string(models.EntryFailed))
	if err != nil {
		return fmt.Errorf("%w: failed to reset failed entries: %v", common.ErrStorage, err)
	}
	return nil
}

// RewritePatientID repoints queue entries at the server-assigned id.
func (r *SQLiteRepository) RewritePatientID(ctx context.Context, oldID, newID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sync_queue SET patient_id = ? WHERE patient_id = ?`, newID, oldID)
	if err != nil {
		return fmt.Errorf("%w: failed to rewrite patient id: %v", common.ErrStorage, err)
	}
	return nil
}

// DeleteAll wipes the queue.
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return fmt.Errorf("%w: failed to wipe queue: %v", common.ErrStorage, err)
	}
	return nil
}

func (r *SQLiteRepository) get(ctx context.Context, id string) (*models.SyncQueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM sync_queue WHERE id = ?`, id)
	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select entry: %v", common.ErrStorage, err)
	}
	return entry, nil
}

func scanEntry(scan func(dest ...any) error) (*models.SyncQueueEntry, error) {
	var (
		entry       models.SyncQueueEntry
		dataType    string
		action      string
		payload     string
		status      string
		nextRetryAt string
		lastError   sql.NullString
		createdAt   string
	)
	err := scan(&entry.ID, &entry.PatientID, &dataType, &action, &payload, &status,
		&entry.RetryCount, &entry.MaxRetries, &entry.BackoffMs, &nextRetryAt, &lastError, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payload), &entry.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	entry.DataType = models.DataType(dataType)
	entry.Action = models.Action(action)
	entry.Status = models.EntryStatus(status)
	if lastError.Valid {
		entry.LastError = &lastError.String
	}
	if entry.NextRetryAt, err = parseTime(nextRetryAt); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Stored with fixed-width fractional seconds so the SQL string comparison
// on next_retry_at stays chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}
