package deck

import "github.com/p-n-ai/pai-learn/internal/progression"

// Presenter receives the controller's output. Implementations render; the
// controller never does.
type Presenter interface {
	OnBlockedAdvance(message string)
	OnIndexChanged(index int, dir Direction)
	OnAccessibilityComputed(access progression.AccessMap)
	OnProgressComputed(snap progression.Snapshot)
}

// NopPresenter drops every callback.
type NopPresenter struct{}

func (NopPresenter) OnBlockedAdvance(string)                       {}
func (NopPresenter) OnIndexChanged(int, Direction)                 {}
func (NopPresenter) OnAccessibilityComputed(progression.AccessMap) {}
func (NopPresenter) OnProgressComputed(progression.Snapshot)       {}

// RecordingPresenter keeps every callback for inspection in tests.
type RecordingPresenter struct {
	Blocked  []string
	Moves    []Move
	Access   []progression.AccessMap
	Progress []progression.Snapshot
}

// Move is one recorded OnIndexChanged call.
type Move struct {
	Index     int
	Direction Direction
}

func (p *RecordingPresenter) OnBlockedAdvance(message string) {
	p.Blocked = append(p.Blocked, message)
}

func (p *RecordingPresenter) OnIndexChanged(index int, dir Direction) {
	p.Moves = append(p.Moves, Move{Index: index, Direction: dir})
}

func (p *RecordingPresenter) OnAccessibilityComputed(access progression.AccessMap) {
	p.Access = append(p.Access, access)
}

func (p *RecordingPresenter) OnProgressComputed(snap progression.Snapshot) {
	p.Progress = append(p.Progress, snap)
}
