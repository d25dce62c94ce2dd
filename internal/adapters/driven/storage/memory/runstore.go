// Package memory provides in-memory store implementations, used in
// tests and wherever persistence is not required.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// Ensure RunStore implements the interface.
var _ driven.RunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.RunStore.
type RunStore struct {
	mu        sync.RWMutex
	runs      map[string]domain.Run
	stageRuns map[string][]domain.StageRun
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:      make(map[string]domain.Run),
		stageRuns: make(map[string][]domain.StageRun),
	}
}

// CreateRun records the start of a pipeline run.
func (s *RunStore) CreateRun(_ context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun records the outcome of a run.
func (s *RunStore) FinishRun(_ context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return domain.ErrNotFound
	}
	s.runs[run.ID] = run
	return nil
}

// SaveStageRun inserts or updates one stage's execution record.
func (s *RunStore) SaveStageRun(_ context.Context, stageRun domain.StageRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.stageRuns[stageRun.RunID]
	for i, sr := range existing {
		if sr.Stage == stageRun.Stage {
			existing[i] = stageRun
			return nil
		}
	}
	s.stageRuns[stageRun.RunID] = append(existing, stageRun)
	return nil
}

// GetRun returns a run by ID.
func (s *RunStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListStageRuns returns the stage records of one run in stage order.
func (s *RunStore) ListStageRuns(_ context.Context, runID string) ([]domain.StageRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stageRuns := s.stageRuns[runID]
	out := make([]domain.StageRun, len(stageRuns))
	copy(out, stageRuns)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Stage.Ordinal() < out[j].Stage.Ordinal()
	})
	return out, nil
}
