// Package syncer drains the durable sync queue against the remote document
// store. Pending entries are grouped per patient, consolidated into one
// remote write built from the current local record, gated by conflict
// detection and only then issued. Different patients flush in parallel;
// everything touching one patient is serialized through the store's record
// locks.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kollectcare/trialsync/internal/client/conflict"
	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/remote"
	"github.com/kollectcare/trialsync/internal/client/store"
	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/logging"
)

// maxParallelPatients caps concurrent per-patient flushes.
const maxParallelPatients = 4

// Syncer owns one flush loop over the queue.
type Syncer struct {
	store  *store.Store
	remote remote.Store
	logger logging.Logger

	status  statusTracker
	flushMu sync.Mutex

	migratedMu sync.Mutex
	onMigrated func(tempID, serverID string)
}

// New builds a Syncer over the local store and the remote document store.
func New(st *store.Store, rs remote.Store, logger logging.Logger) *Syncer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Syncer{store: st, remote: rs, logger: logger}
}

// OnIDMigrated registers a hook invoked after a temporary id has been
// rewritten to its server-assigned id. The lifecycle controller uses it to
// move the reconciliation subscription to the new key.
func (s *Syncer) OnIDMigrated(fn func(tempID, serverID string)) {
	s.migratedMu.Lock()
	defer s.migratedMu.Unlock()
	s.onMigrated = fn
}

func (s *Syncer) notifyMigrated(tempID, serverID string) {
	s.migratedMu.Lock()
	fn := s.onMigrated
	s.migratedMu.Unlock()
	if fn != nil {
		fn(tempID, serverID)
	}
}

// SetOnline records the connectivity state; a flush while offline is a
// no-op so queued work survives untouched.
func (s *Syncer) SetOnline(online bool) {
	s.status.setOnline(online)
}

// Status returns a snapshot of the current sync state.
func (s *Syncer) Status(ctx context.Context) Status {
	s.refreshCounts(ctx)
	return s.status.snapshot()
}

// Flush drains due queue entries. With manual set, previously failed
// entries are re-armed first (the manual retrigger of the failed state).
// Only one flush cycle runs at a time; a concurrent call returns
// immediately. Running a flush twice with no new local edits issues no
// effective remote write the second time.
func (s *Syncer) Flush(ctx context.Context, manual bool) error {
	if !s.status.snapshot().Online {
		s.logger.Debug(ctx, "flush skipped: offline")
		return nil
	}
	if !s.flushMu.TryLock() {
		s.logger.Debug(ctx, "flush skipped: already syncing")
		return nil
	}
	defer s.flushMu.Unlock()

	s.status.setSyncing(true)
	defer s.status.setSyncing(false)

	now := time.Now().UTC()
	if manual {
		if err := s.store.Queue().ResetFailed(ctx, now); err != nil {
			return err
		}
	}

	entries, err := s.store.Queue().Pending(ctx, now)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		s.status.markSyncTime(now)
		s.refreshCounts(ctx)
		return nil
	}

	s.logger.Info(ctx, "flushing queue", "entries", len(entries))

	// Group per patient, preserving the priority order within each group.
	groups := map[string][]*models.SyncQueueEntry{}
	var order []string
	for _, entry := range entries {
		if _, ok := groups[entry.PatientID]; !ok {
			order = append(order, entry.PatientID)
		}
		groups[entry.PatientID] = append(groups[entry.PatientID], entry)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPatients)
	for _, patientID := range order {
		group := groups[patientID]
		g.Go(func() error {
			if err := s.flushPatient(gctx, patientID, group); err != nil {
				// One patient's failure never aborts the others'
				// pending work; it is recorded on the entries.
				s.logger.Warn(gctx, "patient flush failed", "patient_id", patientID, "error", err)
				s.status.addError(fmt.Sprintf("%s: %v", patientID, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.status.markSyncTime(time.Now().UTC())
	s.refreshCounts(ctx)
	return nil
}

// flushPatient consolidates one patient's due entries into at most one
// remote write.
func (s *Syncer) flushPatient(ctx context.Context, patientID string, group []*models.SyncQueueEntry) error {
	unlock := s.store.Lock(patientID)
	notify, err := s.flushLocked(ctx, patientID, group)
	unlock()

	// The migration hook moves the reconciliation subscription, and tearing
	// a subscription down waits for in-flight merge callbacks that take the
	// same record lock. It must run after the lock is released.
	if notify != nil {
		notify()
	}
	return err
}

func (s *Syncer) flushLocked(ctx context.Context, patientID string, group []*models.SyncQueueEntry) (notify func(), err error) {
	for _, entry := range group {
		if err := s.store.Queue().MarkSyncing(ctx, entry.ID); err != nil {
			return nil, err
		}
	}

	rec, err := s.store.Records().Get(ctx, patientID)
	if errors.Is(err, common.ErrorNotFound) {
		// The record was wiped after the entries were queued; nothing
		// left to write.
		return nil, s.markGroupSynced(ctx, group)
	}
	if err != nil {
		return nil, s.failGroup(ctx, patientID, group, err)
	}

	if rec.IsEmpty() {
		// An empty remote write is wasted work and a false
		// "last-write" signal.
		return nil, s.markGroupSynced(ctx, group)
	}

	content := rec.RemoteDocument()

	if isCreateGroup(rec, group) {
		return s.flushCreate(ctx, rec, content, group)
	}
	return nil, s.flushUpdate(ctx, rec, content, group)
}

// isCreateGroup reports whether this group must create the remote document:
// the record still lives under a temporary id and a create entry is due.
func isCreateGroup(rec *models.PatientRecord, group []*models.SyncQueueEntry) bool {
	if !models.IsTempID(rec.PatientID) {
		return false
	}
	for _, entry := range group {
		if entry.Action == models.ActionCreate {
			return true
		}
	}
	return false
}

func (s *Syncer) flushCreate(ctx context.Context, rec *models.PatientRecord, content models.Document, group []*models.SyncQueueEntry) (func(), error) {
	const firstVersion = 1
	doc := stampSyncFields(content, firstVersion)

	serverID, err := s.remote.Create(ctx, remote.PatientCollection, doc)
	if err != nil {
		return nil, s.failGroup(ctx, rec.PatientID, group, err)
	}

	tempID := rec.PatientID
	if err := s.store.MigrateID(ctx, tempID, serverID); err != nil {
		return nil, err
	}
	if err := s.store.MarkSynced(ctx, serverID, firstVersion); err != nil {
		return nil, err
	}
	if err := s.markGroupSynced(ctx, group); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "record created remotely", "temp_id", tempID, "server_id", serverID)
	return func() { s.notifyMigrated(tempID, serverID) }, nil
}

func (s *Syncer) flushUpdate(ctx context.Context, rec *models.PatientRecord, content models.Document, group []*models.SyncQueueEntry) error {
	patientID := rec.PatientID

	snapshot, err := s.remote.Read(ctx, patientID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return s.failGroup(ctx, patientID, group, err)
	}

	// The local version already carries the per-save bump, so it is the
	// write version when the remote document does not exist yet.
	writeVersion := rec.Metadata.Version
	if writeVersion < 1 {
		writeVersion = 1
	}
	if snapshot != nil {
		result := conflict.Detect(content, snapshot.WithoutSyncFields(),
			rec.Metadata.Version, models.RemoteVersion(snapshot))
		if result.Resolution == conflict.UseServer {
			// Either nothing diverged, or the server holds
			// equal-or-newer data. Skipping the write resolves the
			// conflict; the reconciliation listener delivers the
			// authoritative copy.
			if result.Conflict {
				s.logger.Info(ctx, "conflict resolved: use-server",
					"patient_id", patientID,
					"local_version", rec.Metadata.Version,
					"remote_version", models.RemoteVersion(snapshot))
			}
			if err := s.store.MarkSynced(ctx, patientID, models.RemoteVersion(snapshot)); err != nil {
				return err
			}
			return s.markGroupSynced(ctx, group)
		}
		writeVersion = result.WriteVersion
	}

	doc := stampSyncFields(content, writeVersion)
	if err := s.remote.Update(ctx, patientID, doc); err != nil {
		return s.failGroup(ctx, patientID, group, err)
	}

	if err := s.store.MarkSynced(ctx, patientID, writeVersion); err != nil {
		return err
	}
	return s.markGroupSynced(ctx, group)
}

// stampSyncFields copies the content document and adds the version counter
// and content fingerprint every remote document carries.
func stampSyncFields(content models.Document, version int64) models.Document {
	doc := models.Document{}
	for k, v := range content {
		doc[k] = v
	}
	doc[common.VersionField] = version
	doc[common.ChecksumField] = conflict.Checksum(content)
	return doc
}

func (s *Syncer) markGroupSynced(ctx context.Context, group []*models.SyncQueueEntry) error {
	for _, entry := range group {
		if err := s.store.Queue().MarkSynced(ctx, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

// failGroup records the failure on every entry of the group and on the
// record, leaving retries to a later flush.
func (s *Syncer) failGroup(ctx context.Context, patientID string, group []*models.SyncQueueEntry, cause error) error {
	now := time.Now().UTC()
	for _, entry := range group {
		if err := s.store.Queue().RecordFailure(ctx, entry.ID, cause.Error(), now); err != nil {
			return err
		}
	}
	if err := s.store.MarkSyncError(ctx, patientID, cause.Error()); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return cause
}

func (s *Syncer) refreshCounts(ctx context.Context) {
	pending, err := s.store.Queue().PendingCount(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to count pending entries", "error", err)
		return
	}
	failed, err := s.store.Queue().FailedCount(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to count failed entries", "error", err)
		return
	}
	s.status.setCounts(pending, failed)
}
