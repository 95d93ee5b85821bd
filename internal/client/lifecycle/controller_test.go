package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/kollectcare/trialsync/internal/client/listener"
	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/remote"
	"github.com/kollectcare/trialsync/internal/client/store"
	"github.com/kollectcare/trialsync/internal/client/syncer"
	"github.com/kollectcare/trialsync/internal/common"
)

type fakeRemote struct {
	mu     sync.Mutex
	docs   map[string]models.Document
	writes int
	nextID string
}

func (f *fakeRemote) Read(ctx context.Context, patientID string) (models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[patientID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return doc.Clone(), nil
}

func (f *fakeRemote) Update(ctx context.Context, patientID string, fields models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.docs[patientID] = fields.Clone()
	return nil
}

func (f *fakeRemote) Create(ctx context.Context, collection string, doc models.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.docs[f.nextID] = doc.Clone()
	return f.nextID, nil
}

func (f *fakeRemote) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

type fakeSubscriber struct{}

func (fakeSubscriber) Subscribe(ctx context.Context, patientID string, onChange func(models.Document)) (remote.Unsubscribe, error) {
	return func() {}, nil
}

func setup(t *testing.T) (*store.Store, *fakeRemote, *listener.Listener, *Controller) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fr := &fakeRemote{docs: map[string]models.Document{}, nextID: "srv-1"}
	sy := syncer.New(st, fr, nil)
	ln := listener.New(st, fakeSubscriber{}, nil)
	ctrl := New(sy, ln, nil, time.Hour) // ticker far away; transitions drive the test
	return st, fr, ln, ctrl
}

func save(t *testing.T, st *store.Store, patientID string) {
	t.Helper()
	unlock := st.Lock(patientID)
	defer unlock()
	_, err := st.SaveSubmitted(context.Background(), patientID, "doc1", models.DataTypePatient, models.Document{"name": "A"})
	require.NoError(t, err)
}

func TestSetOnline_TransitionFlushesQueue(t *testing.T) {
	st, fr, _, ctrl := setup(t)
	ctx := context.Background()

	save(t, st, "p1")
	assert.Equal(t, 0, fr.writeCount())

	ctrl.SetOnline(ctx, true)
	assert.Equal(t, 1, fr.writeCount())

	// Repeating the same state is not a transition and triggers nothing.
	ctrl.SetOnline(ctx, true)
	assert.Equal(t, 1, fr.writeCount())
}

func TestIDMigration_MovesSubscription(t *testing.T) {
	st, _, ln, ctrl := setup(t)
	ctx := context.Background()

	tempID := models.NewTempPatientID()
	save(t, st, tempID)
	require.NoError(t, ctrl.Watch(ctx, tempID))

	ctrl.SetOnline(ctx, true) // flush performs the create and migration

	assert.Equal(t, []string{"srv-1"}, ln.Active())
}

func TestIDMigration_NoSubscriptionNoNewOne(t *testing.T) {
	st, _, ln, ctrl := setup(t)
	ctx := context.Background()

	tempID := models.NewTempPatientID()
	save(t, st, tempID)

	ctrl.SetOnline(ctx, true)

	assert.Empty(t, ln.Active())
}

func TestOnForeground_Flushes(t *testing.T) {
	st, fr, _, ctrl := setup(t)
	ctx := context.Background()

	ctrl.SetOnline(ctx, true)
	save(t, st, "p1")
	writes := fr.writeCount()

	ctrl.OnForeground(ctx)
	assert.Equal(t, writes+1, fr.writeCount())
}

func TestBackgroundForeground_RestoresSubscriptions(t *testing.T) {
	_, _, ln, ctrl := setup(t)
	ctx := context.Background()

	require.NoError(t, ctrl.Watch(ctx, "p1"))

	ctrl.OnBackground(ctx)
	assert.Empty(t, ln.Active())

	ctrl.OnForeground(ctx)
	assert.Equal(t, []string{"p1"}, ln.Active())

	// Unwatch drops the record from the set for good.
	ctrl.Unwatch("p1")
	ctrl.OnBackground(ctx)
	ctrl.OnForeground(ctx)
	assert.Empty(t, ln.Active())
}

type countingRegistrar struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRegistrar) RegisterRetry(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

func (r *countingRegistrar) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestRetryRegistrar_CalledOnConnectivityLoss(t *testing.T) {
	st, _, _, ctrl := setup(t)
	ctx := context.Background()

	reg := &countingRegistrar{}
	ctrl.SetRetryRegistrar(reg)

	ctrl.SetOnline(ctx, true)
	save(t, st, "p1")
	ctrl.SetOnline(ctx, false)
	assert.Equal(t, 1, reg.count())

	// Repeating offline is not a transition.
	ctrl.SetOnline(ctx, false)
	assert.Equal(t, 1, reg.count())
}

func TestStartStop(t *testing.T) {
	_, _, ln, ctrl := setup(t)
	ctx := context.Background()

	require.NoError(t, ctrl.Watch(ctx, "p1"))

	ctrl.Start(ctx)
	ctrl.Stop()

	assert.Empty(t, ln.Active())
}
