package services

import (
	"fmt"
	"sync"
	"time"

	"ehrkit/internal/pipeline"
)

// RunStore persists pipeline run states for later retrieval.
type RunStore interface {
	Create(state *pipeline.RunState) error
	Get(id string) (*pipeline.RunState, error)
	List(filter RunFilter) []*pipeline.RunState
	Delete(id string) error
	CleanupOld(olderThan time.Duration) int
}

// RunFilter narrows a run listing.
type RunFilter struct {
	Status pipeline.RunStatus
	Since  time.Time
	Limit  int
}

// MemoryRunStore is an in-memory implementation of RunStore. Run states are
// shared with the executing pipeline, which updates them in place under
// their own locks.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*pipeline.RunState
}

// NewMemoryRunStore creates an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*pipeline.RunState)}
}

// Create stores a new run state.
func (s *MemoryRunStore) Create(state *pipeline.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[state.ID]; exists {
		return fmt.Errorf("run %s already exists", state.ID)
	}
	s.runs[state.ID] = state
	return nil
}

// Get retrieves a run state by ID.
func (s *MemoryRunStore) Get(id string) (*pipeline.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return state, nil
}

// List returns run states matching the filter, unordered.
func (s *MemoryRunStore) List(filter RunFilter) []*pipeline.RunState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*pipeline.RunState
	for _, state := range s.runs {
		if filter.Status != "" && state.CurrentStatus() != filter.Status {
			continue
		}
		if !filter.Since.IsZero() && state.StartTime.Before(filter.Since) {
			continue
		}
		result = append(result, state)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

// Delete removes a run state from the store.
func (s *MemoryRunStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return fmt.Errorf("run %s not found", id)
	}
	delete(s.runs, id)
	return nil
}

// CleanupOld removes finished runs older than the given duration and
// returns how many were removed. Running runs are never touched.
func (s *MemoryRunStore) CleanupOld(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for id, state := range s.runs {
		switch state.CurrentStatus() {
		case pipeline.RunStatusCompleted, pipeline.RunStatusFailed, pipeline.RunStatusCancelled:
			if state.StartTime.Before(cutoff) {
				delete(s.runs, id)
				deleted++
			}
		}
	}
	return deleted
}
