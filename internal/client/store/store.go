// Package store owns the client-side SQLite handle and the cross-repository
// invariants: every submitted save updates the patient record and enqueues
// exactly one sync entry inside a single transaction, and temporary-id
// migration rewrites the record key and its queue entries atomically.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/kollectcare/trialsync/internal/client/migrations"
	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/repositories/drafts"
	"github.com/kollectcare/trialsync/internal/client/repositories/queue"
	"github.com/kollectcare/trialsync/internal/client/repositories/records"
	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/dbx"
)

// Store is the explicitly constructed storage handle shared by the sync
// engine's components. One instance per process, opened on startup and
// closed on shutdown.
type Store struct {
	db      *sql.DB
	records *records.SQLiteRepository
	queue   *queue.SQLiteRepository
	drafts  *drafts.SQLiteRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at dsn and runs
// pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: db open error: %v", common.ErrStorage, err)
	}
	// Serialized access keeps "database is locked" errors away from the
	// concurrent per-patient flushes.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migration error: %v", common.ErrStorage, err)
	}

	return &Store{
		db:      db,
		records: records.NewSQLiteRepository(db),
		queue:   queue.NewSQLiteRepository(db),
		drafts:  drafts.NewSQLiteRepository(db),
		locks:   map[string]*sync.Mutex{},
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Records exposes the patient record repository.
func (s *Store) Records() records.Repository { return s.records }

// Queue exposes the sync queue repository.
func (s *Store) Queue() queue.Repository { return s.queue }

// Drafts exposes the draft repository.
func (s *Store) Drafts() drafts.Repository { return s.drafts }

// Lock serializes mutations of one patient record. Local saves, remote
// merges and queue flushes for the same patient id must all hold this lock;
// different patients proceed in parallel.
func (s *Store) Lock(patientID string) (unlock func()) {
	s.mu.Lock()
	m, ok := s.locks[patientID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[patientID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// SaveResult reports what a submitted save produced.
type SaveResult struct {
	PatientID string
	Entry     *models.SyncQueueEntry
}

// SaveSubmitted persists a non-draft payload: the patient record is merged
// at field-group granularity and exactly one queue entry is created, all
// within one transaction. A crash between the two writes cannot leave an
// orphaned record or an orphaned queue entry.
//
// The caller must hold the record lock for patientID.
func (s *Store) SaveSubmitted(ctx context.Context, patientID, ownerID string, dataType models.DataType, payload models.Document) (*SaveResult, error) {
	now := time.Now().UTC()
	action := models.ActionUpdate

	var entry *models.SyncQueueEntry
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		recs := s.records.WithTx(tx)

		rec, err := recs.Get(ctx, patientID)
		if errors.Is(err, common.ErrorNotFound) {
			if dataType != models.DataTypePatient {
				// Baseline and follow-up payloads need an existing
				// record to merge into.
				return fmt.Errorf("record %s: %w", patientID, common.ErrorNotFound)
			}
			rec = &models.PatientRecord{PatientID: patientID, OwnerID: ownerID}
			if models.IsTempID(patientID) {
				action = models.ActionCreate
			}
		} else if err != nil {
			return err
		}

		if ownerID != "" {
			rec.OwnerID = ownerID
		}
		applyPayload(rec, dataType, payload)
		// Each submitted save advances the local version, so an edit made
		// after a clean sync is strictly ahead of the remote copy and wins
		// arbitration instead of being discarded as equal.
		rec.Metadata.Version++
		rec.Metadata.IsDirty = true
		rec.Metadata.SyncError = nil
		rec.UpdatedAt = now

		if err := recs.Put(ctx, rec); err != nil {
			return err
		}

		entry = models.NewSyncQueueEntry(patientID, dataType, action, payload)
		return s.queue.WithTx(tx).Enqueue(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &SaveResult{PatientID: patientID, Entry: entry}, nil
}

// applyPayload merges one payload into the record at the granularity the
// data type dictates: demographics overwrite patient_info, a baseline
// replaces the baseline group, a follow-up replaces its matching visit or is
// appended. The other field groups are never touched, so a baseline write
// can never lose follow-ups and vice versa.
func applyPayload(rec *models.PatientRecord, dataType models.DataType, payload models.Document) {
	switch dataType {
	case models.DataTypePatient:
		rec.PatientInfo = payload.Clone()
	case models.DataTypeBaseline:
		rec.Baseline = payload.Clone()
	case models.DataTypeFollowup:
		doc := payload.Clone()
		if i := rec.FindFollowup(doc); i >= 0 {
			rec.Followups[i] = doc
		} else {
			rec.Followups = append(rec.Followups, doc)
		}
	}
}

// MigrateID renames a record from its temporary id to the server-assigned
// one and repoints queue entries, in one transaction. The record is never
// duplicated: the old key is gone before the transaction commits.
//
// The caller must hold the record lock for the temporary id.
func (s *Store) MigrateID(ctx context.Context, tempID, serverID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.records.WithTx(tx).Rename(ctx, tempID, serverID); err != nil {
			return err
		}
		return s.queue.WithTx(tx).RewritePatientID(ctx, tempID, serverID)
	})
}

// ApplyRemote merges a remote snapshot into the local record: patient_info
// is overwritten, the baseline replaced when present remotely, and the
// follow-up sequence replaced wholesale; the remote store is authoritative
// for shape once a snapshot is accepted.
//
// The caller must hold the record lock and have already decided that the
// snapshot is newer than the local copy.
func (s *Store) ApplyRemote(ctx context.Context, patientID string, snapshot models.Document) error {
	info, baseline, followups := models.SplitRemoteDocument(snapshot)
	version := models.RemoteVersion(snapshot)
	now := time.Now().UTC()

	updatedAt := snapshot.UpdatedAt()
	if updatedAt.IsZero() {
		updatedAt = now
	}

	rec, err := s.records.Get(ctx, patientID)
	if errors.Is(err, common.ErrorNotFound) {
		rec = &models.PatientRecord{PatientID: patientID}
	} else if err != nil {
		return err
	}

	rec.PatientInfo = info
	if baseline != nil {
		rec.Baseline = baseline
	}
	rec.Followups = followups
	rec.Metadata.Version = version
	rec.Metadata.IsDirty = false
	rec.Metadata.SyncError = nil
	rec.Metadata.LastSyncedAt = &now
	rec.UpdatedAt = updatedAt

	return s.records.Put(ctx, rec)
}

// MarkSynced records a confirmed remote write: the record is clean, carries
// the version the write was issued with, and remembers the sync time.
func (s *Store) MarkSynced(ctx context.Context, patientID string, version int64) error {
	rec, err := s.records.Get(ctx, patientID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Metadata.Version = version
	rec.Metadata.IsDirty = false
	rec.Metadata.SyncError = nil
	rec.Metadata.LastSyncedAt = &now
	return s.records.Put(ctx, rec)
}

// MarkSyncError stores the most recent flush error on the record without
// touching its payload.
func (s *Store) MarkSyncError(ctx context.Context, patientID string, cause string) error {
	rec, err := s.records.Get(ctx, patientID)
	if err != nil {
		return err
	}
	rec.Metadata.SyncError = &cause
	return s.records.Put(ctx, rec)
}

// ClearAll wipes records, queue entries and drafts. Used on sign-out; this
// is the only way a record is ever destroyed.
func (s *Store) ClearAll(ctx context.Context) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.records.WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		if err := s.queue.WithTx(tx).DeleteAll(ctx); err != nil {
			return err
		}
		return drafts.NewSQLiteRepository(tx).DeleteAll(ctx)
	})
}
