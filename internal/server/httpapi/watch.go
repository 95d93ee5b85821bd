package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleWatch upgrades to WebSocket and streams the document's snapshots
// until the client disconnects. The current state is pushed immediately so
// a fresh subscriber never waits for the next write.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	ownerID := userIDFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snapshots, cancel := s.hub.Subscribe(docID)
	defer cancel()

	if doc, err := s.documents.Get(r.Context(), ownerID, docID); err == nil {
		if err := conn.WriteJSON(doc.Data); err != nil {
			return
		}
	}

	// Reads only surface disconnects; the client never sends payloads.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snapshot := range snapshots {
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}
}
