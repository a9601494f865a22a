package orchestrator

import (
	"sync"

	"github.com/clawmate/clawmate/pkg/models"
)

// ResultStore holds the terminal result of every finished task, one
// write-once entry per task id. Only the orchestrator writes to it.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]models.TaskResult
}

// NewResultStore creates an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]models.TaskResult)}
}

// Put records a terminal result. The first write wins; later writes for
// the same task id are ignored so a recorded result is never mutated.
func (s *ResultStore) Put(result models.TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.TaskID]; exists {
		return
	}
	s.results[result.TaskID] = result
}

// Get returns the result for a task id, if recorded.
func (s *ResultStore) Get(taskID string) (models.TaskResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[taskID]
	return r, ok
}

// Len returns the number of recorded results.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Clear removes all recorded results.
func (s *ResultStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[string]models.TaskResult)
}
