package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/server/hub"
	"github.com/kollectcare/trialsync/internal/server/repositories/repomanager"
)

type recordingArchiver struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchiver) Archive(ctx context.Context, ownerID, docID string, version int64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, ownerID+"/"+docID)
	return nil
}

func setupDocs(t *testing.T) (*DocumentService, *hub.Hub, *recordingArchiver) {
	t.Helper()
	h := hub.New()
	arc := &recordingArchiver{}
	svc := NewDocumentService(nil, repomanager.NewMemoryRepositoryManager(), h, arc, nil)
	return svc, h, arc
}

func TestCreate_AssignsIDAndMirrorsBookkeeping(t *testing.T) {
	svc, _, arc := setupDocs(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, "owner1", map[string]any{
		"name":           "A",
		"_version":       float64(1),
		"_sync_checksum": "abc",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := svc.Get(ctx, "owner1", id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, "abc", doc.Checksum)
	assert.Equal(t, "A", doc.Data["name"])

	assert.Equal(t, []string{"owner1/" + id}, arc.keys)
}

func TestGet_OwnershipEnforced(t *testing.T) {
	svc, _, _ := setupDocs(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, "owner1", map[string]any{"name": "A"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "owner2", id)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_BroadcastsToWatchers(t *testing.T) {
	svc, h, _ := setupDocs(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, "owner1", map[string]any{"name": "A", "_version": float64(1)})
	require.NoError(t, err)

	snapshots, cancel := h.Subscribe(id)
	defer cancel()

	require.NoError(t, svc.Update(ctx, "owner1", id, map[string]any{"name": "B", "_version": float64(2)}))

	got := <-snapshots
	assert.Equal(t, "B", got["name"])

	doc, err := svc.Get(ctx, "owner1", id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), doc.Version)
}

func TestUpdate_ForeignDocumentRejected(t *testing.T) {
	svc, _, _ := setupDocs(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, "owner1", map[string]any{"name": "A"})
	require.NoError(t, err)

	err = svc.Update(ctx, "owner2", id, map[string]any{"name": "hijacked"})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUpdate_PreservesUnmentionedFieldGroups(t *testing.T) {
	svc, _, _ := setupDocs(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, "owner1", map[string]any{
		"patient_info": map[string]any{"name": "A"},
		"baseline":     map[string]any{"weight": 70},
		"_version":     float64(1),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Update(ctx, "owner1", id, map[string]any{
		"patient_info": map[string]any{"name": "B"},
		"_version":     float64(2),
	}))

	doc, err := svc.Get(ctx, "owner1", id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "B"}, doc.Data["patient_info"])
	assert.Equal(t, map[string]any{"weight": 70}, doc.Data["baseline"])
	assert.Equal(t, int64(2), doc.Version)
}

func TestUpdate_UpsertsWhenAbsent(t *testing.T) {
	svc, _, _ := setupDocs(t)
	ctx := context.Background()

	require.NoError(t, svc.Update(ctx, "owner1", "client-chosen", map[string]any{"name": "A"}))

	doc, err := svc.Get(ctx, "owner1", "client-chosen")
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Data["name"])
}

func TestList_ScopedToOwner(t *testing.T) {
	svc, _, _ := setupDocs(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "owner1", map[string]any{"name": "A"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "owner2", map[string]any{"name": "B"})
	require.NoError(t, err)

	docs, err := svc.List(ctx, "owner1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "A", docs[0].Data["name"])
}
