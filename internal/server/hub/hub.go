// Package hub fans accepted document writes out to watch subscribers. One
// channel per subscriber, keyed by document id.
package hub

import "sync"

// Hub routes document snapshots to watchers of that document.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan map[string]any]struct{}
}

// New builds an empty Hub.
func New() *Hub {
	return &Hub{subs: map[string]map[chan map[string]any]struct{}{}}
}

// Subscribe registers a watcher for one document and returns the channel
// snapshots arrive on plus the deregistration func. The channel is buffered;
// a watcher that stops draining loses intermediate snapshots rather than
// blocking writers.
func (h *Hub) Subscribe(docID string) (<-chan map[string]any, func()) {
	ch := make(chan map[string]any, 8)

	h.mu.Lock()
	if h.subs[docID] == nil {
		h.subs[docID] = map[chan map[string]any]struct{}{}
	}
	h.subs[docID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[docID], ch)
			if len(h.subs[docID]) == 0 {
				delete(h.subs, docID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers a snapshot to every watcher of docID. Slow watchers
// with a full buffer are skipped; the next snapshot supersedes anyway.
func (h *Hub) Broadcast(docID string, snapshot map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[docID] {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Watchers reports how many subscribers a document currently has.
func (h *Hub) Watchers(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[docID])
}
