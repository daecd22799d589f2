package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-learn/internal/deck"
	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/responses"
)

type effectKind int

const (
	effectSubmit effectKind = iota
	effectMark
	effectComplete
)

// effect is the result of a store write, fed back into the session loop.
type effect struct {
	kind   effectKind
	unitID string
	err    error
}

// session drives one learner's deck over one websocket. Controller calls and
// socket writes happen only on the loop goroutine; store writes run on their
// own goroutines and report back through results.
type session struct {
	id          string
	learnerID   string
	submoduleID string
	slides      []progression.Unit

	conn         *websocket.Conn
	ctrl         *deck.Controller
	presenter    *framePresenter
	store        responses.Store
	events       deck.EventLogger
	writeTimeout time.Duration
	storeTimeout time.Duration

	results   chan effect
	done      chan struct{}
	wg        sync.WaitGroup
	completed bool
}

func (s *session) run(ctx context.Context) error {
	defer close(s.done)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			typ, data, err := s.conn.Read(ctx)
			if err != nil {
				readErr <- err
				return
			}
			if typ != websocket.MessageText {
				data = nil
			}
			select {
			case inbound <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	s.sendState()
	s.refresh(ctx)
	s.maybeComplete()
	if err := s.flush(ctx); err != nil {
		return err
	}

	for {
		select {
		case data := <-inbound:
			s.handle(ctx, data)
		case e := <-s.results:
			s.apply(ctx, e)
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := s.flush(ctx); err != nil {
			return err
		}
	}
}

func (s *session) handle(ctx context.Context, data []byte) {
	if data == nil {
		s.presenter.push(errorFrame("frames must be JSON text"))
		return
	}
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.presenter.push(errorFrame("invalid frame: " + err.Error()))
		return
	}

	switch f.Type {
	case FrameAdvance:
		from := s.ctrl.State().Index
		if s.ctrl.RequestAdvance(f.Delta) == deck.Moved {
			s.afterMove(from)
		}
	case FrameJump:
		from := s.ctrl.State().Index
		if s.ctrl.RequestJump(f.Index) == deck.Moved {
			s.afterMove(from)
		}
	case FrameSubmit:
		s.submit(f.UnitID, f.Fields)
	case FrameReset:
		s.ctrl.Reset()
		s.completed = false
		s.sendState()
		s.refresh(ctx)
		s.maybeComplete()
	case FrameResync:
		s.sendState()
		s.refresh(ctx)
	default:
		s.presenter.push(errorFrame(fmt.Sprintf("unknown frame type %q", f.Type)))
	}
}

// afterMove records ungated slides the learner moved forward past.
func (s *session) afterMove(from int) {
	to := s.ctrl.State().Index
	for i := from; i < to; i++ {
		if !s.slides[i].Gated() {
			s.mark(effectMark, s.slides[i].ID)
		}
	}
	s.maybeComplete()
}

func (s *session) submit(unitID string, fields progression.Bundle) {
	reject := func(err error) {
		s.presenter.push(Frame{Type: FrameSubmission, UnitID: unitID, Status: SubmissionRejected, Error: err.Error()})
	}
	if err := s.ctrl.CheckFields(unitID, fields); err != nil {
		reject(err)
		return
	}
	if err := s.ctrl.BeginSubmission(unitID); err != nil {
		reject(err)
		return
	}

	persisted := deck.WithMarker(fields)
	s.goStore(func(ctx context.Context) effect {
		err := s.store.Submit(ctx, s.learnerID, unitID, persisted)
		return effect{kind: effectSubmit, unitID: unitID, err: err}
	})
}

// maybeComplete marks the submodule complete once the learner stands on the
// last slide and that slide does not wait for a submission.
func (s *session) maybeComplete() {
	if s.completed || !s.ctrl.AtEnd() {
		return
	}
	last := s.ctrl.Current()
	if last.Gated() && !s.ctrl.Submitted(last.ID) {
		return
	}
	s.completed = true

	s.goStore(func(ctx context.Context) effect {
		if !last.Gated() {
			if err := s.store.MarkComplete(ctx, s.learnerID, last.ID); err != nil {
				return effect{kind: effectComplete, unitID: s.submoduleID, err: err}
			}
		}
		err := s.store.MarkComplete(ctx, s.learnerID, s.submoduleID)
		return effect{kind: effectComplete, unitID: s.submoduleID, err: err}
	})
}

func (s *session) mark(kind effectKind, unitID string) {
	s.goStore(func(ctx context.Context) effect {
		err := s.store.MarkComplete(ctx, s.learnerID, unitID)
		return effect{kind: kind, unitID: unitID, err: err}
	})
}

// goStore runs write off the loop. Writes outlive the socket so an answer
// sent just before a disconnect is still saved.
func (s *session) goStore(write func(ctx context.Context) effect) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.storeTimeout)
		defer cancel()

		e := write(ctx)
		select {
		case s.results <- e:
		case <-s.done:
			if e.err != nil {
				slog.Warn("deck store write failed after session ended",
					"session_id", s.id,
					"unit_id", e.unitID,
					"error", e.err,
				)
			}
		}
	}()
}

func (s *session) apply(ctx context.Context, e effect) {
	switch e.kind {
	case effectSubmit:
		recorded := s.ctrl.FinishSubmission(e.unitID, e.err)
		if e.err != nil {
			s.presenter.push(Frame{Type: FrameSubmission, UnitID: e.unitID, Status: SubmissionFailed, Error: "could not save your answer, please try again"})
			return
		}
		if !recorded {
			// Began before a reset; the stored answer still shows in the trail.
			s.refresh(ctx)
			return
		}
		s.presenter.push(Frame{Type: FrameSubmission, UnitID: e.unitID, Status: SubmissionAccepted})
		s.maybeComplete()
	case effectMark:
		if e.err != nil {
			slog.Warn("failed to mark slide complete", "session_id", s.id, "unit_id", e.unitID, "error", e.err)
			return
		}
	case effectComplete:
		if e.err != nil {
			slog.Warn("failed to mark submodule complete", "session_id", s.id, "submodule_id", e.unitID, "error", e.err)
			s.completed = false
			return
		}
		if err := s.events.LogEvent(deck.Event{
			DeckID:    s.submoduleID,
			LearnerID: s.learnerID,
			EventType: deck.EventSubmoduleCompleted,
			Data:      map[string]any{"session_id": s.id},
		}); err != nil {
			slog.Warn("failed to log deck event", "type", deck.EventSubmoduleCompleted, "error", err)
		}
		s.presenter.push(Frame{Type: FrameCompleted, UnitID: s.submoduleID})
	}
	s.refresh(ctx)
}

func (s *session) refresh(ctx context.Context) {
	snap, err := s.store.Snapshot(ctx, s.learnerID, progression.IDs(s.slides))
	if err != nil {
		slog.Warn("failed to load deck responses", "session_id", s.id, "error", err)
		s.presenter.push(errorFrame("progress is temporarily unavailable"))
		return
	}
	s.ctrl.Refresh(snap)
}

func (s *session) sendState() {
	st := s.ctrl.State()
	submitted := st.Submitted
	if submitted == nil {
		submitted = []string{}
	}
	s.presenter.push(Frame{Type: FrameState, State: &StateView{
		SessionID:   s.id,
		SubmoduleID: s.submoduleID,
		Index:       st.Index,
		Slides:      st.Slides,
		Submitted:   submitted,
		CanAdvance:  s.ctrl.CanAdvance(),
	}})
}

func (s *session) flush(ctx context.Context) error {
	for _, f := range s.presenter.drain() {
		wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
		err := wsjson.Write(wctx, s.conn, f)
		cancel()
		if err != nil {
			return fmt.Errorf("write %s frame: %w", f.Type, err)
		}
	}
	return nil
}

// closedNormally reports whether err is the peer going away cleanly.
func closedNormally(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return errors.Is(err, context.Canceled)
}
