// Package listener merges remote change notifications into the local
// patient store. One subscription is alive per open record at a time; a
// stale notification can never revert a fresher local edit.
package listener

import (
	"context"
	"errors"
	"sync"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/client/remote"
	"github.com/kollectcare/trialsync/internal/client/store"
	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/logging"
)

// Listener owns the reconciliation subscriptions.
type Listener struct {
	store      *store.Store
	subscriber remote.Subscriber
	logger     logging.Logger

	mu     sync.Mutex
	active map[string]remote.Unsubscribe
}

// New builds a Listener over the local store and a change subscriber.
func New(st *store.Store, sub remote.Subscriber, logger logging.Logger) *Listener {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Listener{
		store:      st,
		subscriber: sub,
		logger:     logger,
		active:     map[string]remote.Unsubscribe{},
	}
}

// Subscribe opens the change stream for one record. An existing
// subscription for the same record is cleanly torn down first, so merge
// callbacks are never duplicated.
func (l *Listener) Subscribe(ctx context.Context, patientID string) error {
	l.Unsubscribe(patientID)

	unsub, err := l.subscriber.Subscribe(ctx, patientID, func(doc models.Document) {
		l.merge(context.Background(), patientID, doc)
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	// A concurrent Subscribe for the same record may have won the race;
	// the newest subscription stays, the loser is closed.
	if prev, ok := l.active[patientID]; ok {
		defer prev()
	}
	l.active[patientID] = unsub
	l.mu.Unlock()

	l.logger.Debug(ctx, "subscribed", "patient_id", patientID)
	return nil
}

// Unsubscribe tears down the subscription for one record. Synchronous and
// idempotent: when it returns no further merge callback will fire.
func (l *Listener) Unsubscribe(patientID string) {
	l.mu.Lock()
	unsub, ok := l.active[patientID]
	delete(l.active, patientID)
	l.mu.Unlock()
	if ok {
		unsub()
	}
}

// UnsubscribeAll tears down every subscription. Used when the application
// is backgrounded or on sign-out.
func (l *Listener) UnsubscribeAll() {
	l.mu.Lock()
	subs := l.active
	l.active = map[string]remote.Unsubscribe{}
	l.mu.Unlock()
	for _, unsub := range subs {
		unsub()
	}
}

// Active returns the ids of records with a live subscription.
func (l *Listener) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	return ids
}

// merge applies one remote snapshot. The local copy wins whenever it is
// strictly newer, which protects an in-flight local edit from being
// reverted by a stale echo of a write still propagating. Delivery order is
// irrelevant: the updated_at guard alone decides.
func (l *Listener) merge(ctx context.Context, patientID string, doc models.Document) {
	unlock := l.store.Lock(patientID)
	defer unlock()

	local, err := l.store.Records().Get(ctx, patientID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		l.logger.Error(ctx, "merge aborted: cannot load local record", "patient_id", patientID, "error", err)
		return
	}

	if local != nil && local.UpdatedAt.After(doc.UpdatedAt()) {
		l.logger.Debug(ctx, "stale remote snapshot discarded", "patient_id", patientID)
		return
	}

	if err := l.store.ApplyRemote(ctx, patientID, doc); err != nil {
		l.logger.Error(ctx, "merge failed", "patient_id", patientID, "error", err)
		return
	}
	l.logger.Debug(ctx, "remote snapshot merged", "patient_id", patientID)
}
