// Package realtime serves slide decks over websockets: the browser sends
// navigation and submission intents, the server answers with the deck
// controller's presentation callbacks.
package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/p-n-ai/pai-learn/internal/curriculum"
	"github.com/p-n-ai/pai-learn/internal/deck"
	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/responses"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultStoreTimeout = 5 * time.Second
	readLimit           = 64 << 10
)

// Slides provides a submodule's slide list.
type Slides interface {
	SlideUnits(submoduleID string) ([]progression.Unit, error)
}

// Config holds dependencies for the deck websocket server.
type Config struct {
	Slides          Slides
	Store           responses.Store
	Events          deck.EventLogger
	Hub             *Hub
	BlockedAdvisory string
	OriginPatterns  []string      // extra origins allowed to open sockets
	WriteTimeout    time.Duration // per frame (default 5s)
	StoreTimeout    time.Duration // per store write (default 5s)
}

// Server upgrades deck requests to websocket sessions.
type Server struct {
	slides         Slides
	store          responses.Store
	events         deck.EventLogger
	hub            *Hub
	advisory       string
	originPatterns []string
	writeTimeout   time.Duration
	storeTimeout   time.Duration
}

// NewServer creates a deck websocket server.
func NewServer(cfg Config) *Server {
	store := cfg.Store
	if store == nil {
		store = responses.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = deck.NopEventLogger{}
	}
	hub := cfg.Hub
	if hub == nil {
		hub = NewHub()
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout == 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Server{
		slides:         cfg.Slides,
		store:          store,
		events:         events,
		hub:            hub,
		advisory:       cfg.BlockedAdvisory,
		originPatterns: cfg.OriginPatterns,
		writeTimeout:   writeTimeout,
		storeTimeout:   storeTimeout,
	}
}

// Hub returns the server's session hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Register mounts the deck route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/submodules/{submoduleID}/deck", s.handleDeck)
}

func (s *Server) handleDeck(w http.ResponseWriter, r *http.Request) {
	learnerID := strings.TrimSpace(r.URL.Query().Get("learner"))
	if learnerID == "" {
		writeError(w, http.StatusBadRequest, "learner query parameter is required")
		return
	}
	submoduleID := r.PathValue("submoduleID")
	slides, err := s.slides.SlideUnits(submoduleID)
	if err != nil {
		if errors.Is(err, curriculum.ErrUnknownSubmodule) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("failed to load slides", "submodule_id", submoduleID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	presenter := &framePresenter{}
	ctrl, err := deck.NewController(deck.Config{
		ID:              submoduleID,
		LearnerID:       learnerID,
		Slides:          slides,
		Presenter:       presenter,
		Events:          s.events,
		BlockedAdvisory: s.advisory,
	})
	if err != nil {
		slog.Error("failed to open deck", "submodule_id", submoduleID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket upgrade failed", "submodule_id", submoduleID, "error", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	sess := &session{
		id:           uuid.NewString(),
		learnerID:    learnerID,
		submoduleID:  submoduleID,
		slides:       slides,
		conn:         conn,
		ctrl:         ctrl,
		presenter:    presenter,
		store:        s.store,
		events:       s.events,
		writeTimeout: s.writeTimeout,
		storeTimeout: s.storeTimeout,
		results:      make(chan effect),
		done:         make(chan struct{}),
	}
	s.hub.add(sess)
	defer s.hub.remove(sess.id)

	err = sess.run(r.Context())
	sess.wg.Wait()

	if err != nil && !closedNormally(err) {
		slog.Warn("deck session ended", "session_id", sess.id, "error", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Debug("deck session closed", "session_id", sess.id)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
