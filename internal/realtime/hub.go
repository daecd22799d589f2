package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Hub tracks open deck sessions so they can be closed on shutdown.
type Hub struct {
	sessions map[string]*session
	mu       sync.RWMutex
}

// NewHub creates an empty session hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*session),
	}
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	slog.Debug("deck session opened",
		"session_id", s.id,
		"submodule_id", s.submoduleID,
		"learner_id", s.learnerID,
	)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every open session with StatusGoingAway and waits for the
// close handshakes.
func (h *Hub) CloseAll(reason string) {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.conn.Close(websocket.StatusGoingAway, reason); err != nil {
				slog.Debug("deck session close", "session_id", s.id, "error", err)
			}
		}()
	}
	wg.Wait()

	if len(sessions) > 0 {
		slog.Info("deck sessions closed", "count", len(sessions))
	}
}
