package records

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kollectcare/trialsync/internal/client/migrations"
	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/common"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, "."))

	return db
}

func sampleRecord(id string) *models.PatientRecord {
	return &models.PatientRecord{
		PatientID:   id,
		OwnerID:     "doc1",
		PatientInfo: models.Document{"name": "A"},
		Baseline:    models.Document{"weight": float64(80)},
		Followups: []models.Document{
			{models.FieldVisitNumber: float64(1)},
		},
		Metadata:  models.SyncMetadata{IsDirty: true, Version: 2},
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := sampleRecord("p1")
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, rec.PatientInfo, got.PatientInfo)
	assert.Equal(t, rec.Baseline, got.Baseline)
	assert.Equal(t, rec.Followups, got.Followups)
	assert.True(t, got.Metadata.IsDirty)
	assert.Equal(t, int64(2), got.Metadata.Version)
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))
}

func TestGet_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPut_Upsert(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := sampleRecord("p1")
	require.NoError(t, r.Put(ctx, rec))

	rec.PatientInfo = models.Document{"name": "B"}
	require.NoError(t, r.Put(ctx, rec))

	got, err := r.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "B", got.PatientInfo["name"])

	recs, err := r.ListByOwner(ctx, "doc1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestListByOwner_ScopedAndOrdered(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	old := sampleRecord("p1")
	old.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, r.Put(ctx, old))

	fresh := sampleRecord("p2")
	require.NoError(t, r.Put(ctx, fresh))

	other := sampleRecord("p3")
	other.OwnerID = "doc2"
	require.NoError(t, r.Put(ctx, other))

	recs, err := r.ListByOwner(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "p2", recs[0].PatientID)
	assert.Equal(t, "p1", recs[1].PatientID)
}

func TestRename(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, sampleRecord("tmp_abc")))
	require.NoError(t, r.Rename(ctx, "tmp_abc", "srv-1"))

	_, err := r.Get(ctx, "tmp_abc")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	got, err := r.Get(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", got.PatientID)

	// The old key is gone, so renaming again must fail.
	assert.Error(t, r.Rename(ctx, "tmp_abc", "srv-2"))
}

func TestDeleteAll(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, sampleRecord("p1")))
	require.NoError(t, r.DeleteAll(ctx))

	recs, err := r.ListByOwner(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
