// Package service is the client-facing surface of the sync engine. Form
// handlers call it and get a local acknowledgement immediately; everything
// network-related happens behind it.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/store"
	"github.com/kollectcare/trialsync/internal/client/syncer"
	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/logging"
)

// Service coordinates the local store and the syncer behind one API.
type Service struct {
	store  *store.Store
	syncer *syncer.Syncer
	logger logging.Logger
}

// New builds the facade.
func New(st *store.Store, sy *syncer.Syncer, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{store: st, syncer: sy, logger: logger}
}

// SaveRequest is one form save, draft or submitted.
type SaveRequest struct {
	FormID    string
	PatientID string // empty for a brand-new patient
	OwnerID   string
	DataType  models.DataType
	Payload   models.Document
	IsDraft   bool
	// ValidationErrors carries the form's outstanding problems; only drafts
	// may have any.
	ValidationErrors []string
}

// SaveResult is the local acknowledgement of a save.
type SaveResult struct {
	PatientID string
	IsDraft   bool
	QueueID   string
}

// Save persists one form payload. Drafts land in the draft table, cost no
// queue entry and may carry validation errors. Submitted saves must be
// valid, are merged into the patient record and queued for sync in one
// transaction, and are acknowledged before any network I/O happens.
func (s *Service) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if err := validateSave(req); err != nil {
		return nil, err
	}

	if req.IsDraft {
		return s.saveDraft(ctx, req)
	}
	return s.saveSubmitted(ctx, req)
}

func validateSave(req SaveRequest) error {
	if !req.DataType.Valid() {
		return fmt.Errorf("%w: unknown data type %q", common.ErrValidation, req.DataType)
	}
	if len(req.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", common.ErrValidation)
	}
	if !req.IsDraft && len(req.ValidationErrors) > 0 {
		return fmt.Errorf("%w: cannot submit with outstanding errors: %s",
			common.ErrValidation, strings.Join(req.ValidationErrors, "; "))
	}
	if req.PatientID == "" && req.DataType != models.DataTypePatient {
		return fmt.Errorf("%w: %s save requires a patient id", common.ErrValidation, req.DataType)
	}
	return nil
}

func (s *Service) saveDraft(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if req.FormID == "" {
		return nil, fmt.Errorf("%w: draft requires a form id", common.ErrValidation)
	}
	draft := &models.Draft{
		FormID:           req.FormID,
		PatientID:        req.PatientID,
		DataType:         req.DataType,
		Payload:          req.Payload.Clone(),
		ValidationErrors: req.ValidationErrors,
		SavedAt:          time.Now().UTC(),
	}
	if err := s.store.Drafts().Put(ctx, draft); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "draft saved", "form_id", req.FormID, "patient_id", req.PatientID)
	return &SaveResult{PatientID: req.PatientID, IsDraft: true}, nil
}

func (s *Service) saveSubmitted(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	patientID := req.PatientID
	if patientID == "" {
		// Registration works offline: the record starts under a
		// temporary id and is re-keyed once the server assigns one.
		patientID = models.NewTempPatientID()
	}

	unlock := s.store.Lock(patientID)
	saved, err := s.store.SaveSubmitted(ctx, patientID, req.OwnerID, req.DataType, req.Payload)
	unlock()
	if err != nil {
		return nil, err
	}

	// The submitted payload supersedes any lingering draft of the form.
	if req.FormID != "" {
		if err := s.store.Drafts().Delete(ctx, req.FormID); err != nil {
			s.logger.Warn(ctx, "draft cleanup failed", "form_id", req.FormID, "error", err)
		}
	}

	s.logger.Info(ctx, "record saved", "patient_id", patientID, "data_type", req.DataType)

	// Local save is the acknowledgement; the flush runs after it and its
	// outcome surfaces through GetSyncStatus, never through this call.
	go func() {
		if err := s.syncer.Flush(context.Background(), false); err != nil {
			s.logger.Warn(context.Background(), "post-save flush failed", "error", err)
		}
	}()

	return &SaveResult{PatientID: saved.PatientID, QueueID: saved.Entry.ID}, nil
}

// GetRecord loads one patient record.
func (s *Service) GetRecord(ctx context.Context, patientID string) (*models.PatientRecord, error) {
	return s.store.Records().Get(ctx, patientID)
}

// ListRecords returns the records owned by one clinician.
func (s *Service) ListRecords(ctx context.Context, ownerID string) ([]*models.PatientRecord, error) {
	return s.store.Records().ListByOwner(ctx, ownerID)
}

// GetDraft loads one draft by form id.
func (s *Service) GetDraft(ctx context.Context, formID string) (*models.Draft, error) {
	return s.store.Drafts().Get(ctx, formID)
}

// ListDrafts returns a patient's drafts, newest first.
func (s *Service) ListDrafts(ctx context.Context, patientID string) ([]*models.Draft, error) {
	return s.store.Drafts().ListByPatient(ctx, patientID)
}

// DeleteDraft discards one draft; deleting an absent draft is not an error.
func (s *Service) DeleteDraft(ctx context.Context, formID string) error {
	return s.store.Drafts().Delete(ctx, formID)
}

// TriggerSync runs a manual flush: failed entries are re-armed and the
// queue drained now rather than at the next background tick.
func (s *Service) TriggerSync(ctx context.Context) error {
	return s.syncer.Flush(ctx, true)
}

// SyncStatus reports the engine's current state for the UI.
func (s *Service) SyncStatus(ctx context.Context) syncer.Status {
	return s.syncer.Status(ctx)
}

// ClearAllData wipes every record, queue entry and draft. Sign-out only.
func (s *Service) ClearAllData(ctx context.Context) error {
	s.logger.Info(ctx, "clearing all local data")
	return s.store.ClearAll(ctx)
}
