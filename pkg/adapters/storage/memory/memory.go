package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aescanero/factllm/pkg/domain"
	"github.com/aescanero/factllm/pkg/ports"
)

// InMemoryRunStorage implements RunStorage using in-memory map
// Runs are lost on restart; use the Redis storage to share runs between
// processes.
type InMemoryRunStorage struct {
	runs map[string]*domain.Run
	mu   sync.RWMutex
}

// NewInMemoryRunStorage creates a new in-memory run storage
func NewInMemoryRunStorage() *InMemoryRunStorage {
	return &InMemoryRunStorage{
		runs: make(map[string]*domain.Run),
	}
}

// SaveRun stores a copy of run
func (s *InMemoryRunStorage) SaveRun(ctx context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run.Clone()
	return nil
}

// GetRun returns a copy of the stored run
func (s *InMemoryRunStorage) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ports.ErrRunNotFound
	}
	return run.Clone(), nil
}

// DeleteRun removes a run
func (s *InMemoryRunStorage) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	return nil
}

// ListRuns returns every run, oldest first
func (s *InMemoryRunStorage) ListRuns(ctx context.Context) ([]*domain.Run, error) {
	s.mu.RLock()
	runs := make([]*domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].SubmittedAt.Before(runs[j].SubmittedAt)
	})
	return runs, nil
}

var _ ports.RunStorage = (*InMemoryRunStorage)(nil)
