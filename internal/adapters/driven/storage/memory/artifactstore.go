package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// Ensure ArtifactStore implements the interface.
var _ driven.ArtifactStore = (*ArtifactStore)(nil)

// ArtifactStore is an in-memory implementation of driven.ArtifactStore.
// Results round-trip through JSON so callers never share memory with the
// store, matching the isolation of the file-backed implementation.
type ArtifactStore struct {
	mu      sync.RWMutex
	results map[domain.Stage][]byte
}

// NewArtifactStore creates a new in-memory artifact store.
func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{
		results: make(map[domain.Stage][]byte),
	}
}

// SaveStageResult stores the complete result for a stage.
func (s *ArtifactStore) SaveStageResult(_ context.Context, result *domain.StageResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode stage result: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.Meta.Stage] = data
	return nil
}

// LoadStageResult reads a previously stored stage result.
func (s *ArtifactStore) LoadStageResult(_ context.Context, stage domain.Stage) (*domain.StageResult, error) {
	s.mu.RLock()
	data, ok := s.results[stage]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	var result domain.StageResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode stage result: %w", err)
	}
	return &result, nil
}

// HasStage reports whether a stage artifact exists.
func (s *ArtifactStore) HasStage(_ context.Context, stage domain.Stage) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.results[stage]
	return ok, nil
}

// Delete removes a stage artifact. Used by tests to simulate partial
// output directories.
func (s *ArtifactStore) Delete(stage domain.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, stage)
}
