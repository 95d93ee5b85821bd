package syncer

import (
	"sync"
	"time"
)

// Status is a snapshot of the engine's sync state, surfaced to the UI.
type Status struct {
	Online       bool
	Syncing      bool
	PendingCount int
	FailedCount  int
	LastSyncTime *time.Time
	RecentErrors []string
}

const maxRecentErrors = 5

// statusTracker is the shared, mutex-guarded state behind GetSyncStatus.
// Components write through it directly instead of passing callbacks around.
type statusTracker struct {
	mu     sync.Mutex
	status Status
}

func (t *statusTracker) setOnline(online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Online = online
}

func (t *statusTracker) setSyncing(syncing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Syncing = syncing
}

func (t *statusTracker) setCounts(pending, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.PendingCount = pending
	t.status.FailedCount = failed
}

func (t *statusTracker) markSyncTime(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastSyncTime = &at
}

func (t *statusTracker) addError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.RecentErrors = append(t.status.RecentErrors, msg)
	if n := len(t.status.RecentErrors); n > maxRecentErrors {
		t.status.RecentErrors = t.status.RecentErrors[n-maxRecentErrors:]
	}
}

func (t *statusTracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status
	s.RecentErrors = append([]string(nil), t.status.RecentErrors...)
	return s
}
