// Package curriculum loads class documents (class, modules, submodules and
// slides) from YAML and turns them into unit lists for the progression core.
package curriculum

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

var (
	ErrUnknownClass     = errors.New("unknown class")
	ErrUnknownModule    = errors.New("unknown module")
	ErrUnknownSubmodule = errors.New("unknown submodule")
)

//go:embed class.schema.json
var classSchemaJSON string

var classSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(classSchemaJSON))
})

// Loader loads and caches class documents from the filesystem.
type Loader struct {
	rootDir    string
	classes    map[string]Class
	overviews  map[string]string
	modules    map[string]Module
	submodules map[string]Submodule
	unitOwner  map[string]string // unit id -> class id, for duplicate detection
	mu         sync.RWMutex
}

// NewLoader creates a new curriculum loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:    rootDir,
		classes:    make(map[string]Class),
		overviews:  make(map[string]string),
		modules:    make(map[string]Module),
		submodules: make(map[string]Submodule),
		unitOwner:  make(map[string]string),
	}

	if _, err := classSchema(); err != nil {
		return nil, fmt.Errorf("compiling class schema: %w", err)
	}
	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded",
		"classes", len(l.classes),
		"modules", len(l.modules),
		"submodules", len(l.submodules),
	)
	return l, nil
}

// Class returns a class by ID.
func (l *Loader) Class(id string) (Class, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.classes[id]
	return c, ok
}

// Module returns a module by ID.
func (l *Loader) Module(id string) (Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[id]
	return m, ok
}

// Submodule returns a submodule by ID.
func (l *Loader) Submodule(id string) (Submodule, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.submodules[id]
	return s, ok
}

// Overview returns the markdown overview shipped next to a class document.
func (l *Loader) Overview(classID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.overviews[classID]
	return o, ok
}

// AllClasses returns all loaded classes ordered by ID.
func (l *Loader) AllClasses() []Class {
	l.mu.RLock()
	defer l.mu.RUnlock()
	classes := make([]Class, 0, len(l.classes))
	for _, c := range l.classes {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes
}

// ModuleUnits returns a module's submodules as progression units.
func (l *Loader) ModuleUnits(moduleID string) ([]progression.Unit, error) {
	m, ok := l.Module(moduleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, moduleID)
	}
	units := make([]progression.Unit, len(m.Submodules))
	for i, s := range m.Submodules {
		units[i] = progression.Unit{ID: s.ID, Position: i, Kind: progression.KindSubmodule}
	}
	return units, nil
}

// SlideUnits returns a submodule's slides as progression units. A slide
// requires a response before advance when it is a question slide that
// persists its answers and has at least one required question.
func (l *Loader) SlideUnits(submoduleID string) ([]progression.Unit, error) {
	s, ok := l.Submodule(submoduleID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubmodule, submoduleID)
	}
	units := make([]progression.Unit, len(s.Slides))
	for i, slide := range s.Slides {
		required := slide.RequiredFields()
		units[i] = progression.Unit{
			ID:               slide.ID,
			Position:         i,
			Kind:             progression.KindSlide,
			Content:          progression.ContentType(slide.Type),
			RequiresResponse: slide.Type == SlideQuestion && slide.PersistResponse && len(required) > 0,
			RequiredFields:   required,
		}
	}
	return units, nil
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, ".overview.md"):
			return l.loadOverview(path)
		case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
			return l.loadClass(path)
		}
		return nil
	})
}

func (l *Loader) loadClass(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid class YAML", "path", path, "error", err)
		return nil
	}
	if _, ok := doc["modules"]; !ok {
		return nil // Not a class file
	}
	if err := validateDocument(doc); err != nil {
		slog.Warn("skipping class that fails schema validation", "path", path, "error", err)
		return nil
	}

	var class Class
	if err := yaml.Unmarshal(data, &class); err != nil {
		slog.Warn("skipping invalid class YAML", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkUniqueLocked(class); err != nil {
		slog.Warn("skipping class with clashing ids", "path", path, "error", err)
		return nil
	}
	l.classes[class.ID] = class
	l.unitOwner[class.ID] = class.ID
	for _, m := range class.Modules {
		l.modules[m.ID] = m
		l.unitOwner[m.ID] = class.ID
		for _, s := range m.Submodules {
			l.submodules[s.ID] = s
			l.unitOwner[s.ID] = class.ID
			for _, slide := range s.Slides {
				l.unitOwner[slide.ID] = class.ID
			}
		}
	}
	return nil
}

// checkUniqueLocked rejects a class whose ids repeat within itself or clash
// with an already loaded class. Response bundles are keyed by unit id alone.
func (l *Loader) checkUniqueLocked(class Class) error {
	seen := map[string]struct{}{}
	claim := func(id string) error {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("id %q repeats within class %s", id, class.ID)
		}
		seen[id] = struct{}{}
		if owner, ok := l.unitOwner[id]; ok {
			return fmt.Errorf("id %q already used by class %s", id, owner)
		}
		return nil
	}

	if err := claim(class.ID); err != nil {
		return err
	}
	for _, m := range class.Modules {
		if err := claim(m.ID); err != nil {
			return err
		}
		for _, s := range m.Submodules {
			if err := claim(s.ID); err != nil {
				return err
			}
			for _, slide := range s.Slides {
				if err := claim(slide.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateDocument(doc map[string]any) error {
	schema, err := classSchema()
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (l *Loader) loadOverview(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Derive class ID from matching YAML file
	yamlPath := strings.TrimSuffix(path, ".overview.md") + ".yaml"
	yamlData, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil // No matching YAML, skip
	}

	var partial struct {
		ID string `yaml:"id"`
	}
	if err := yaml.Unmarshal(yamlData, &partial); err != nil || partial.ID == "" {
		return nil
	}

	l.mu.Lock()
	l.overviews[partial.ID] = string(data)
	l.mu.Unlock()

	return nil
}
