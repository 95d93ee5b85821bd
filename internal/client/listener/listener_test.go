package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/remote"
	"github.com/kollectcare/trialsync/internal/client/store"
)

// fakeSubscriber hands out manually driven subscriptions.
type fakeSubscriber struct {
	mu         sync.Mutex
	callbacks  map[string]func(models.Document)
	subscribed int
	cancelled  int
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{callbacks: map[string]func(models.Document){}}
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, patientID string, onChange func(models.Document)) (remote.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed++
	f.callbacks[patientID] = onChange
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
	}, nil
}

// push simulates a server-side change notification.
func (f *fakeSubscriber) push(patientID string, doc models.Document) {
	f.mu.Lock()
	cb := f.callbacks[patientID]
	f.mu.Unlock()
	if cb != nil {
		cb(doc)
	}
}

func setup(t *testing.T) (*store.Store, *fakeSubscriber, *Listener) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sub := newFakeSubscriber()
	return st, sub, New(st, sub, nil)
}

func snapshot(name string, version int64, updatedAt time.Time) models.Document {
	return models.Document{
		"name":       name,
		"_version":   version,
		"updated_at": updatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func TestMerge_AppliesRemoteSnapshot(t *testing.T) {
	st, sub, l := setup(t)
	ctx := context.Background()

	unlock := st.Lock("p1")
	_, err := st.SaveSubmitted(ctx, "p1", "doc1", models.DataTypePatient, models.Document{"name": "local"})
	unlock()
	require.NoError(t, err)

	require.NoError(t, l.Subscribe(ctx, "p1"))
	sub.push("p1", snapshot("remote", 3, time.Now().Add(time.Minute)))

	rec, err := st.Records().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "remote", rec.PatientInfo["name"])
	assert.Equal(t, int64(3), rec.Metadata.Version)
	assert.False(t, rec.Metadata.IsDirty)
}

func TestMerge_StaleSnapshotDiscarded(t *testing.T) {
	st, sub, l := setup(t)
	ctx := context.Background()

	unlock := st.Lock("p1")
	_, err := st.SaveSubmitted(ctx, "p1", "doc1", models.DataTypePatient, models.Document{"name": "local"})
	unlock()
	require.NoError(t, err)

	require.NoError(t, l.Subscribe(ctx, "p1"))

	// A stale echo carrying a past timestamp must not revert the local
	// edit, in whatever order it arrives.
	sub.push("p1", snapshot("stale", 1, time.Now().Add(-time.Hour)))

	rec, err := st.Records().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "local", rec.PatientInfo["name"])
	assert.True(t, rec.Metadata.IsDirty)
}

func TestMerge_CreatesRecordWhenAbsent(t *testing.T) {
	st, sub, l := setup(t)
	ctx := context.Background()

	require.NoError(t, l.Subscribe(ctx, "p1"))
	sub.push("p1", snapshot("fresh", 1, time.Now()))

	rec, err := st.Records().Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.PatientInfo["name"])
}

func TestSubscribe_ReplacesPreviousSubscription(t *testing.T) {
	_, sub, l := setup(t)
	ctx := context.Background()

	require.NoError(t, l.Subscribe(ctx, "p1"))
	require.NoError(t, l.Subscribe(ctx, "p1"))

	assert.Equal(t, 2, sub.subscribed)
	assert.Equal(t, 1, sub.cancelled)
	assert.Equal(t, []string{"p1"}, l.Active())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	_, sub, l := setup(t)
	ctx := context.Background()

	require.NoError(t, l.Subscribe(ctx, "p1"))
	l.Unsubscribe("p1")
	l.Unsubscribe("p1")

	assert.Equal(t, 1, sub.cancelled)
	assert.Empty(t, l.Active())
}

func TestUnsubscribeAll(t *testing.T) {
	_, sub, l := setup(t)
	ctx := context.Background()

	require.NoError(t, l.Subscribe(ctx, "p1"))
	require.NoError(t, l.Subscribe(ctx, "p2"))
	l.UnsubscribeAll()

	assert.Equal(t, 2, sub.cancelled)
	assert.Empty(t, l.Active())
}
