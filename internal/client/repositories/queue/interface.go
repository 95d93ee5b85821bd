package queue

import (
	"context"
	"time"

	"github.com/kollectcare/trialsync/internal/client/models"
)

// Repository describes the durable sync queue: ordered pending mutations
// with retry bookkeeping. Implementations are backed by SQLite.
type Repository interface {
	// Enqueue inserts a new entry. Must run inside the same transaction
	// as the record write it belongs to.
	Enqueue(ctx context.Context, entry *models.SyncQueueEntry) error

	// Pending returns entries that are due at the given instant, ordered
	// by type priority (create before update, patient before baseline
	// before followup) then by creation time.
	Pending(ctx context.Context, now time.Time) ([]*models.SyncQueueEntry, error)

	// PendingCount counts entries still awaiting a successful sync,
	// including ones currently backing off.
	PendingCount(ctx context.Context) (int, error)

	// FailedCount counts entries that exhausted their retries.
	FailedCount(ctx context.Context) (int, error)

	// MarkSyncing flips an entry to syncing for the duration of a flush.
	MarkSyncing(ctx context.Context, id string) error

	// MarkSynced marks an entry as durably applied to the remote store.
	MarkSynced(ctx context.Context, id string) error

	// RecordFailure increments the retry count, doubles the capped
	// backoff and either re-arms the entry as pending or flips it to
	// failed once retries are exhausted.
	RecordFailure(ctx context.Context, id string, cause string, now time.Time) error

	// ResetFailed re-arms failed entries for a manual retrigger.
	ResetFailed(ctx context.Context, now time.Time) error

	// RewritePatientID repoints entries still referencing a temporary
	// patient id at the server-assigned one. Runs inside the migration
	// transaction.
	RewritePatientID(ctx context.Context, oldID, newID string) error

	// DeleteAll wipes the queue. Only the sign-out path calls this.
	DeleteAll(ctx context.Context) error
}
