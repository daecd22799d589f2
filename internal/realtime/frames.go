package realtime

import (
	"github.com/p-n-ai/pai-learn/internal/deck"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

// Client frame types.
const (
	FrameAdvance = "advance"
	FrameJump    = "jump"
	FrameSubmit  = "submit"
	FrameReset   = "reset"
	FrameResync  = "resync"
)

// Server frame types.
const (
	FrameState         = "state"
	FrameBlocked       = "blocked"
	FrameIndexChanged  = "index_changed"
	FrameAccessibility = "accessibility"
	FrameProgress      = "progress"
	FrameSubmission    = "submission"
	FrameCompleted     = "completed"
	FrameError         = "error"
)

// Submission statuses.
const (
	SubmissionAccepted = "accepted"
	SubmissionRejected = "rejected"
	SubmissionFailed   = "failed"
)

// ClientFrame is a navigation or submission intent sent by the browser.
type ClientFrame struct {
	Type   string             `json:"type"`
	Delta  int                `json:"delta,omitempty"`
	Index  int                `json:"index,omitempty"`
	UnitID string             `json:"unit_id,omitempty"`
	Fields progression.Bundle `json:"fields,omitempty"`
}

// StateView is the deck state sent on connect, reset and resync.
type StateView struct {
	SessionID   string             `json:"session_id"`
	SubmoduleID string             `json:"submodule_id"`
	Index       int                `json:"index"`
	Slides      []progression.Unit `json:"slides"`
	Submitted   []string           `json:"submitted"`
	CanAdvance  bool               `json:"can_advance"`
}

// Frame is a message sent to the browser. Only the fields of its Type are set.
type Frame struct {
	Type      string                 `json:"type"`
	State     *StateView             `json:"state,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Index     *int                   `json:"index,omitempty"`
	Direction string                 `json:"direction,omitempty"`
	Access    *progression.AccessMap `json:"access,omitempty"`
	Progress  *progression.Snapshot  `json:"progress,omitempty"`
	UnitID    string                 `json:"unit_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func errorFrame(msg string) Frame {
	return Frame{Type: FrameError, Error: msg}
}

// framePresenter turns controller callbacks into pending frames. It is only
// touched from the session loop.
type framePresenter struct {
	pending []Frame
}

func (p *framePresenter) push(f Frame) {
	p.pending = append(p.pending, f)
}

func (p *framePresenter) drain() []Frame {
	out := p.pending
	p.pending = nil
	return out
}

func (p *framePresenter) OnBlockedAdvance(message string) {
	p.push(Frame{Type: FrameBlocked, Message: message})
}

func (p *framePresenter) OnIndexChanged(index int, dir deck.Direction) {
	p.push(Frame{Type: FrameIndexChanged, Index: &index, Direction: dir.String()})
}

func (p *framePresenter) OnAccessibilityComputed(access progression.AccessMap) {
	p.push(Frame{Type: FrameAccessibility, Access: &access})
}

func (p *framePresenter) OnProgressComputed(snap progression.Snapshot) {
	p.push(Frame{Type: FrameProgress, Progress: &snap})
}
