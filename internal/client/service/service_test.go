package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/store"
	"github.com/kollectcare/trialsync/internal/client/syncer"
	"github.com/kollectcare/trialsync/internal/common"
)

// offlineRemote records calls; every call fails, as if the network is down.
type offlineRemote struct {
	mu    sync.Mutex
	calls int
}

func (r *offlineRemote) bump() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
}

func (r *offlineRemote) Read(ctx context.Context, patientID string) (models.Document, error) {
	r.bump()
	return nil, common.ErrSync
}

func (r *offlineRemote) Update(ctx context.Context, patientID string, fields models.Document) error {
	r.bump()
	return common.ErrSync
}

func (r *offlineRemote) Create(ctx context.Context, collection string, doc models.Document) (string, error) {
	r.bump()
	return "", common.ErrSync
}

func setup(t *testing.T) (*store.Store, *syncer.Syncer, *Service) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sy := syncer.New(st, &offlineRemote{}, nil) // offline: flushes are no-ops
	return st, sy, New(st, sy, nil)
}

func TestSave_NewPatientGetsTempID(t *testing.T) {
	st, _, svc := setup(t)
	ctx := context.Background()

	result, err := svc.Save(ctx, SaveRequest{
		OwnerID:  "doc1",
		DataType: models.DataTypePatient,
		Payload:  models.Document{"name": "A"},
	})
	require.NoError(t, err)
	assert.True(t, models.IsTempID(result.PatientID))
	assert.NotEmpty(t, result.QueueID)

	// The acknowledgement is local: record and queue entry exist even
	// though no network is reachable.
	rec, err := st.Records().Get(ctx, result.PatientID)
	require.NoError(t, err)
	assert.True(t, rec.Metadata.IsDirty)

	pending, err := st.Queue().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestSave_SubmitWithValidationErrorsRejected(t *testing.T) {
	_, _, svc := setup(t)

	_, err := svc.Save(context.Background(), SaveRequest{
		OwnerID:          "doc1",
		DataType:         models.DataTypePatient,
		Payload:          models.Document{"name": "A"},
		ValidationErrors: []string{"dob missing"},
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSave_UnknownDataTypeRejected(t *testing.T) {
	_, _, svc := setup(t)

	_, err := svc.Save(context.Background(), SaveRequest{
		OwnerID:  "doc1",
		DataType: "vitals",
		Payload:  models.Document{"x": 1},
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSave_DraftBypassesQueue(t *testing.T) {
	st, _, svc := setup(t)
	ctx := context.Background()

	result, err := svc.Save(ctx, SaveRequest{
		FormID:           "f1",
		PatientID:        "p1",
		OwnerID:          "doc1",
		DataType:         models.DataTypeBaseline,
		Payload:          models.Document{"weight": float64(300)},
		IsDraft:          true,
		ValidationErrors: []string{"weight out of range"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsDraft)

	// Drafts may be invalid and never cost a queue entry or a record.
	pending, err := st.Queue().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	_, err = st.Records().Get(ctx, "p1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	draft, err := svc.GetDraft(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"weight out of range"}, draft.ValidationErrors)
}

func TestSave_SubmitSupersedesDraft(t *testing.T) {
	_, _, svc := setup(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, SaveRequest{
		FormID:    "f1",
		OwnerID:   "doc1",
		DataType:  models.DataTypePatient,
		Payload:   models.Document{"name": "draft"},
		IsDraft:   true,
		PatientID: "",
	})
	require.NoError(t, err)

	_, err = svc.Save(ctx, SaveRequest{
		FormID:   "f1",
		OwnerID:  "doc1",
		DataType: models.DataTypePatient,
		Payload:  models.Document{"name": "final"},
	})
	require.NoError(t, err)

	_, err = svc.GetDraft(ctx, "f1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSave_BaselineRequiresPatientID(t *testing.T) {
	_, _, svc := setup(t)

	_, err := svc.Save(context.Background(), SaveRequest{
		OwnerID:  "doc1",
		DataType: models.DataTypeBaseline,
		Payload:  models.Document{"weight": 80},
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestClearAllData(t *testing.T) {
	st, _, svc := setup(t)
	ctx := context.Background()

	result, err := svc.Save(ctx, SaveRequest{
		OwnerID:  "doc1",
		DataType: models.DataTypePatient,
		Payload:  models.Document{"name": "A"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.ClearAllData(ctx))

	_, err = st.Records().Get(ctx, result.PatientID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	pending, err := st.Queue().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestSyncStatus_ReflectsQueue(t *testing.T) {
	_, sy, svc := setup(t)
	ctx := context.Background()

	sy.SetOnline(false)

	_, err := svc.Save(ctx, SaveRequest{
		OwnerID:  "doc1",
		DataType: models.DataTypePatient,
		Payload:  models.Document{"name": "A"},
	})
	require.NoError(t, err)

	// The post-save flush goroutine is a no-op while offline.
	time.Sleep(50 * time.Millisecond)

	status := svc.SyncStatus(ctx)
	assert.False(t, status.Online)
	assert.Equal(t, 1, status.PendingCount)
}
