// Package responses persists learner answers as response bundles, one bundle
// per learner and unit.
package responses

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/p-n-ai/pai-learn/internal/progression"
)

// ErrNotFound is returned by Get when the learner has no bundle for a unit.
var ErrNotFound = errors.New("response bundle not found")

// Store persists response bundles.
type Store interface {
	Get(ctx context.Context, learnerID, unitID string) (progression.Bundle, error)
	// Snapshot returns the bundles of unitIDs the learner has answered. Units
	// without a bundle are absent from the map.
	Snapshot(ctx context.Context, learnerID string, unitIDs []string) (progression.ResponseMap, error)
	// Submit merges fields into the unit's bundle.
	Submit(ctx context.Context, learnerID, unitID string, fields progression.Bundle) error
	// MarkComplete records the completion marker on the unit's bundle.
	MarkComplete(ctx context.Context, learnerID, unitID string) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	bundles map[string]map[string]progression.Bundle // learner -> unit -> bundle
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory response store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bundles: make(map[string]map[string]progression.Bundle),
	}
}

func (s *MemoryStore) Get(_ context.Context, learnerID, unitID string) (progression.Bundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bundles[learnerID][unitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, learnerID, unitID)
	}
	return maps.Clone(b), nil
}

func (s *MemoryStore) Snapshot(_ context.Context, learnerID string, unitIDs []string) (progression.ResponseMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := progression.ResponseMap{}
	units := s.bundles[learnerID]
	for _, id := range unitIDs {
		if b, ok := units[id]; ok {
			out[id] = maps.Clone(b)
		}
	}
	return out, nil
}

func (s *MemoryStore) Submit(_ context.Context, learnerID, unitID string, fields progression.Bundle) error {
	if err := checkKey(learnerID, unitID); err != nil {
		return err
	}
	fields = Normalize(fields)

	s.mu.Lock()
	defer s.mu.Unlock()

	units, ok := s.bundles[learnerID]
	if !ok {
		units = make(map[string]progression.Bundle)
		s.bundles[learnerID] = units
	}
	b, ok := units[unitID]
	if !ok {
		b = progression.Bundle{}
		units[unitID] = b
	}
	maps.Copy(b, fields)
	return nil
}

func (s *MemoryStore) MarkComplete(ctx context.Context, learnerID, unitID string) error {
	return s.Submit(ctx, learnerID, unitID, markerBundle())
}

func checkKey(learnerID, unitID string) error {
	if learnerID == "" {
		return fmt.Errorf("learner_id is required")
	}
	if unitID == "" {
		return fmt.Errorf("unit_id is required")
	}
	return nil
}

func markerBundle() progression.Bundle {
	return progression.Bundle{progression.MarkerField: progression.Text("true")}
}
