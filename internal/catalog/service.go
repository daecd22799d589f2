// Package catalog serves learner-facing progress views: per-class and
// per-module completion, submodule accessibility and spreadsheet exports.
package catalog

import (
	"context"
	"fmt"

	"github.com/p-n-ai/pai-learn/internal/curriculum"
	"github.com/p-n-ai/pai-learn/internal/progression"
	"github.com/p-n-ai/pai-learn/internal/responses"
)

// Curriculum is the part of curriculum.Loader the catalog reads.
type Curriculum interface {
	AllClasses() []curriculum.Class
	Class(id string) (curriculum.Class, bool)
	Module(id string) (curriculum.Module, bool)
	ModuleUnits(moduleID string) ([]progression.Unit, error)
	Overview(classID string) (string, bool)
}

// SubmoduleView is one row of a module's submodule list.
type SubmoduleView struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Position      int    `json:"position"`
	Accessible    bool   `json:"accessible"`
	Completed     bool   `json:"completed"`
	Current       bool   `json:"current"`
	LineCompleted bool   `json:"line_completed"`
}

// ModuleView is a module with the learner's progress through it.
type ModuleView struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Progress   progression.Snapshot `json:"progress"`
	Submodules []SubmoduleView      `json:"submodules,omitempty"`
}

// ClassView is a class with per-module progress.
type ClassView struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Overview    string               `json:"overview,omitempty"`
	Progress    progression.Snapshot `json:"progress"`
	Modules     []ModuleView         `json:"modules"`
}

// Service computes progress views from the curriculum and stored responses.
type Service struct {
	curriculum Curriculum
	store      responses.Store
}

// NewService creates a catalog service.
func NewService(c Curriculum, store responses.Store) *Service {
	return &Service{curriculum: c, store: store}
}

// Classes returns every class with module-level progress for the learner.
func (s *Service) Classes(ctx context.Context, learnerID string) ([]ClassView, error) {
	classes := s.curriculum.AllClasses()
	views := make([]ClassView, 0, len(classes))
	for _, c := range classes {
		v, err := s.classView(ctx, learnerID, c, false)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Class returns one class with full submodule detail for every module.
func (s *Service) Class(ctx context.Context, learnerID, classID string) (ClassView, error) {
	c, ok := s.curriculum.Class(classID)
	if !ok {
		return ClassView{}, fmt.Errorf("%w: %s", curriculum.ErrUnknownClass, classID)
	}
	return s.classView(ctx, learnerID, c, true)
}

// ModuleProgress returns a module's progress and submodule accessibility.
func (s *Service) ModuleProgress(ctx context.Context, learnerID, moduleID string) (ModuleView, error) {
	m, ok := s.curriculum.Module(moduleID)
	if !ok {
		return ModuleView{}, fmt.Errorf("%w: %s", curriculum.ErrUnknownModule, moduleID)
	}
	units, err := s.curriculum.ModuleUnits(moduleID)
	if err != nil {
		return ModuleView{}, err
	}
	snap, err := s.store.Snapshot(ctx, learnerID, progression.IDs(units))
	if err != nil {
		return ModuleView{}, fmt.Errorf("load responses for module %s: %w", moduleID, err)
	}
	return moduleView(m, units, snap, true), nil
}

func (s *Service) classView(ctx context.Context, learnerID string, c curriculum.Class, detail bool) (ClassView, error) {
	unitsByModule := make([][]progression.Unit, len(c.Modules))
	var ids []string
	for i, m := range c.Modules {
		units, err := s.curriculum.ModuleUnits(m.ID)
		if err != nil {
			return ClassView{}, err
		}
		unitsByModule[i] = units
		ids = append(ids, progression.IDs(units)...)
	}

	snap, err := s.store.Snapshot(ctx, learnerID, ids)
	if err != nil {
		return ClassView{}, fmt.Errorf("load responses for class %s: %w", c.ID, err)
	}

	view := ClassView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Modules:     make([]ModuleView, len(c.Modules)),
	}
	view.Overview, _ = s.curriculum.Overview(c.ID)

	var completed, total int
	for i, m := range c.Modules {
		mv := moduleView(m, unitsByModule[i], snap, detail)
		completed += mv.Progress.CompletedCount
		total += mv.Progress.TotalCount
		view.Modules[i] = mv
	}
	view.Progress = progression.Snapshot{
		CompletedCount: completed,
		TotalCount:     total,
		Percentage:     progression.Percentage(completed, total),
	}
	return view, nil
}

func moduleView(m curriculum.Module, units []progression.Unit, src progression.Source, detail bool) ModuleView {
	view := ModuleView{
		ID:       m.ID,
		Name:     m.Name,
		Progress: progression.ComputeProgress(units, src),
	}
	if !detail {
		return view
	}

	access := progression.ComputeAccessibility(units, src)
	view.Submodules = make([]SubmoduleView, len(units))
	for i, a := range access.Units {
		view.Submodules[i] = SubmoduleView{
			ID:            a.UnitID,
			Name:          m.Submodules[i].Name,
			Position:      units[i].Position,
			Accessible:    a.Accessible,
			Completed:     a.Completed,
			Current:       a.Current,
			LineCompleted: a.LineCompleted,
		}
	}
	return view
}
