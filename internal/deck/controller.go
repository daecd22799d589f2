// Package deck runs the slide-deck state machine of an open lesson: it
// sequences slides, gates forward navigation behind required submissions and
// tracks what was submitted in the current session.
package deck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// DefaultBlockedAdvisory is shown when a learner tries to skip a required
// question.
const DefaultBlockedAdvisory = "Please submit your answer before moving on."

var (
	// ErrSubmissionInFlight rejects a second submission for a slide whose
	// first one has not resolved yet.
	ErrSubmissionInFlight = errors.New("submission already in flight")
	// ErrIncompleteResponse rejects a submission missing required fields.
	ErrIncompleteResponse = errors.New("required fields are missing")
	// ErrUnknownSlide is returned for slide ids outside the deck.
	ErrUnknownSlide = errors.New("slide is not part of this deck")
)

// Direction of the last index change.
type Direction int

const (
	Backward Direction = -1
	Still    Direction = 0
	Forward  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Backward:
		return "backward"
	case Forward:
		return "forward"
	default:
		return "still"
	}
}

// Outcome of a navigation request. Neither Blocked nor Ignored is a fault.
type Outcome int

const (
	Moved Outcome = iota
	Blocked
	Ignored
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case Blocked:
		return "blocked"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Submitter persists a slide's answers. It is the response store seen from
// the deck.
type Submitter interface {
	Submit(ctx context.Context, learnerID, unitID string, fields progression.Bundle) error
}

// Config holds dependencies for a deck controller.
type Config struct {
	ID              string // usually the submodule id
	LearnerID       string
	Slides          []progression.Unit
	Presenter       Presenter
	Events          EventLogger
	BlockedAdvisory string
}

// State is a copy of the controller's state.
type State struct {
	Slides     []progression.Unit
	Index      int
	Submitted  []string
	Submitting []string
	Direction  Direction
}

// Controller is the deck state machine. Callbacks are delivered after the
// internal lock is released, so a presenter may call back into the controller.
type Controller struct {
	id        string
	learnerID string
	presenter Presenter
	events    EventLogger
	advisory  string

	mu         sync.Mutex
	slides     []progression.Unit
	index      int
	direction  Direction
	submitted  flagSet
	submitting map[string]uint64 // slide id -> generation that began it
	generation uint64            // bumped by every reset
}

// NewController opens a deck at its first slide. The slide list must be
// non-empty with unique ids.
func NewController(cfg Config) (*Controller, error) {
	if err := progression.ValidateUnits(cfg.Slides); err != nil {
		return nil, fmt.Errorf("new deck: %w", err)
	}
	presenter := cfg.Presenter
	if presenter == nil {
		presenter = NopPresenter{}
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	advisory := cfg.BlockedAdvisory
	if advisory == "" {
		advisory = DefaultBlockedAdvisory
	}
	return &Controller{
		id:         cfg.ID,
		learnerID:  cfg.LearnerID,
		presenter:  presenter,
		events:     events,
		advisory:   advisory,
		slides:     slices.Clone(cfg.Slides),
		submitted:  flagSet{},
		submitting: map[string]uint64{},
	}, nil
}

// ID returns the deck id.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// RequestAdvance moves one slide forward (+1) or back (-1); other deltas are
// ignored. Targets outside the deck are ignored; forward moves off an
// unsubmitted gated slide are blocked with an advisory.
func (c *Controller) RequestAdvance(delta int) Outcome {
	if delta != 1 && delta != -1 {
		return Ignored
	}
	return c.moveTo(func(cur int) int { return cur + delta })
}

// RequestJump moves straight to target. Forward jumps are gated by the
// current slide, not the target; backward jumps are always allowed.
func (c *Controller) RequestJump(target int) Outcome {
	return c.moveTo(func(int) int { return target })
}

func (c *Controller) moveTo(targetOf func(cur int) int) Outcome {
	var notes []func()

	c.mu.Lock()
	from := c.index
	target := targetOf(from)
	outcome := Ignored
	switch {
	case target < 0 || target >= len(c.slides) || target == c.index:
	case target > c.index && c.gateClosedLocked():
		outcome = Blocked
		slideID := c.slides[c.index].ID
		notes = append(notes,
			func() { c.presenter.OnBlockedAdvance(c.advisory) },
			c.logFunc(EventAdvanceBlocked, map[string]any{"slide_id": slideID, "target": target}),
		)
	default:
		outcome = Moved
		c.index = target
		c.direction = Backward
		if target > from {
			c.direction = Forward
		}
		dir := c.direction
		notes = append(notes,
			func() { c.presenter.OnIndexChanged(target, dir) },
			c.logFunc(EventSlideChanged, map[string]any{"from": from, "to": target}),
		)
	}
	c.mu.Unlock()

	fire(notes)
	return outcome
}

// gateClosedLocked reports whether the current slide blocks forward moves.
func (c *Controller) gateClosedLocked() bool {
	cur := c.slides[c.index]
	return cur.Gated() && !c.submitted.Submitted(cur.ID)
}

// CanAdvance reports whether a forward move from the current slide would pass
// the gate. It says nothing about whether a next slide exists.
func (c *Controller) CanAdvance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.gateClosedLocked()
}

// RecordSubmission marks a slide as submitted for this session. Recording the
// same id twice has no further effect. It never moves the index.
func (c *Controller) RecordSubmission(unitID string) {
	var notes []func()

	c.mu.Lock()
	if !c.submitted.Submitted(unitID) {
		c.submitted[unitID] = struct{}{}
		notes = append(notes, c.logFunc(EventSubmissionRecorded, map[string]any{"slide_id": unitID}))
	}
	c.mu.Unlock()

	fire(notes)
}

// BeginSubmission claims the in-flight slot for a slide. Gate evaluation is
// unaffected: the slide stays gated until FinishSubmission reports success.
// Slots survive Reset and Load until their effect resolves.
func (c *Controller) BeginSubmission(unitID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.indexOfLocked(unitID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSlide, unitID)
	}
	if _, busy := c.submitting[unitID]; busy {
		return fmt.Errorf("%w: %s", ErrSubmissionInFlight, unitID)
	}
	c.submitting[unitID] = c.generation
	return nil
}

// FinishSubmission releases the in-flight slot and reports whether the
// submission was recorded. Only a successful effect that began after the
// latest Reset or Load is recorded.
func (c *Controller) FinishSubmission(unitID string, err error) bool {
	c.mu.Lock()
	gen, ok := c.submitting[unitID]
	delete(c.submitting, unitID)
	stale := !ok || gen != c.generation
	deckID := c.id
	c.mu.Unlock()

	switch {
	case err != nil:
		slog.Warn("submission failed, slide stays gated",
			"deck_id", deckID,
			"slide_id", unitID,
			"error", err,
		)
		return false
	case stale:
		slog.Debug("dropping submission from before deck reset",
			"deck_id", deckID,
			"slide_id", unitID,
		)
		return false
	}
	c.RecordSubmission(unitID)
	return true
}

// Submit validates a slide's answers, persists them together with the
// completion marker and records the submission once the store reports
// success.
func (c *Controller) Submit(ctx context.Context, store Submitter, unitID string, fields progression.Bundle) error {
	if err := c.CheckFields(unitID, fields); err != nil {
		return err
	}
	if err := c.BeginSubmission(unitID); err != nil {
		return err
	}
	err := store.Submit(ctx, c.learnerID, unitID, WithMarker(fields))
	c.FinishSubmission(unitID, err)
	if err != nil {
		return fmt.Errorf("submit %s: %w", unitID, err)
	}
	return nil
}

// CheckFields verifies every required field of the slide has a value.
func (c *Controller) CheckFields(unitID string, fields progression.Bundle) error {
	c.mu.Lock()
	i := c.indexOfLocked(unitID)
	var required []string
	if i >= 0 {
		required = c.slides[i].RequiredFields
	}
	c.mu.Unlock()

	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSlide, unitID)
	}
	if missing := fields.Missing(required); len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrIncompleteResponse, missing)
	}
	return nil
}

// Reset clears submissions and returns to the first slide.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.resetLocked()
	logReset := c.logFunc(EventDeckReset, nil)
	c.mu.Unlock()

	c.presenter.OnIndexChanged(0, Still)
	logReset()
}

// Load swaps in a different slide list, e.g. when the learner enters another
// submodule of the same lesson, and resets the deck.
func (c *Controller) Load(id string, slides []progression.Unit) error {
	if err := progression.ValidateUnits(slides); err != nil {
		return fmt.Errorf("load deck %s: %w", id, err)
	}
	c.mu.Lock()
	c.id = id
	c.slides = slices.Clone(slides)
	c.resetLocked()
	logReset := c.logFunc(EventDeckReset, map[string]any{"slides": len(slides)})
	c.mu.Unlock()

	c.presenter.OnIndexChanged(0, Still)
	logReset()
	return nil
}

func (c *Controller) resetLocked() {
	c.index = 0
	c.direction = Still
	c.submitted = flagSet{}
	c.generation++
}

// Refresh recomputes the slide trail and progress from stored responses and
// hands them to the presenter. Gating does not read src.
func (c *Controller) Refresh(src progression.Source) {
	c.mu.Lock()
	slides := slices.Clone(c.slides)
	c.mu.Unlock()

	c.presenter.OnAccessibilityComputed(progression.ComputeAccessibility(slides, src))
	c.presenter.OnProgressComputed(progression.ComputeProgress(slides, src))
}

// Submitted reports whether a slide was submitted in this session.
func (c *Controller) Submitted(unitID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitted.Submitted(unitID)
}

// Current returns the slide at the current index.
func (c *Controller) Current() progression.Unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slides[c.index]
}

// AtEnd reports whether the learner is on the last slide.
func (c *Controller) AtEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index == len(c.slides)-1
}

// State returns a copy of the deck state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Slides:     slices.Clone(c.slides),
		Index:      c.index,
		Submitted:  c.submitted.sorted(),
		Submitting: slices.Sorted(maps.Keys(c.submitting)),
		Direction:  c.direction,
	}
}

func (c *Controller) indexOfLocked(unitID string) int {
	for i, s := range c.slides {
		if s.ID == unitID {
			return i
		}
	}
	return -1
}

func (c *Controller) logFunc(eventType string, data map[string]any) func() {
	event := Event{
		DeckID:    c.id,
		LearnerID: c.learnerID,
		EventType: eventType,
		Data:      data,
	}
	return func() {
		if err := c.events.LogEvent(event); err != nil {
			slog.Warn("failed to log deck event", "type", eventType, "error", err)
		}
	}
}

// WithMarker returns a copy of fields carrying the completion marker.
func WithMarker(fields progression.Bundle) progression.Bundle {
	out := maps.Clone(fields)
	if out == nil {
		out = progression.Bundle{}
	}
	out[progression.MarkerField] = progression.Text("true")
	return out
}

func fire(notes []func()) {
	for _, n := range notes {
		n()
	}
}

type flagSet map[string]struct{}

func (f flagSet) Submitted(unitID string) bool {
	_, ok := f[unitID]
	return ok
}

func (f flagSet) sorted() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
