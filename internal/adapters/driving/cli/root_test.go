package cli

import (
	"context"
	"os"
	"sync"

	"github.com/strata-qda/strata-cli/internal/adapters/driven/config/file"
	"github.com/strata-qda/strata-cli/internal/adapters/driven/storage/memory"
	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
	"github.com/strata-qda/strata-cli/internal/core/ports/driving"
)

// fakeRunner is a scripted PipelineRunner for command tests.
type fakeRunner struct {
	mu      sync.Mutex
	results []*domain.StageResult
	err     error
	lastOpt driving.RunOptions
	called  bool
}

func (f *fakeRunner) Run(_ context.Context, opts driving.RunOptions) ([]*domain.StageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpt = opts
	f.called = true
	return f.results, f.err
}

func (f *fakeRunner) Progress() *driving.RunProgress {
	return nil
}

// setupTestServices wires the package-level services to test doubles and
// returns a cleanup restoring the previous state.
func setupTestServices() func() {
	prevConfig, prevPrompts, prevRuns := configStore, promptStore, runStore
	prevNewRunner := newPipelineRunner
	prevValidate := validateProviderConfig

	configTmp, _ := os.MkdirTemp("", "strata-cli-config-*") //nolint:errcheck
	promptTmp, _ := os.MkdirTemp("", "strata-cli-prompt-*") //nolint:errcheck

	cs, _ := file.NewConfigStore(configTmp) //nolint:errcheck
	ps, _ := file.NewPromptStore(promptTmp) //nolint:errcheck
	configStore = cs
	promptStore = ps
	runStore = memory.NewRunStore()

	validateProviderConfig = func(domain.PipelineSettings) error { return nil }

	return func() {
		configStore, promptStore, runStore = prevConfig, prevPrompts, prevRuns
		newPipelineRunner = prevNewRunner
		validateProviderConfig = prevValidate
		os.RemoveAll(configTmp) //nolint:errcheck
		os.RemoveAll(promptTmp) //nolint:errcheck
		rootCmd.SetArgs(nil)
	}
}

// useFakeRunner substitutes the pipeline constructor with a scripted runner.
func useFakeRunner(f *fakeRunner) {
	newPipelineRunner = func(
		_ domain.PipelineSettings,
		_ driven.ArtifactStore,
	) (driving.PipelineRunner, func(), error) {
		return f, func() {}, nil
	}
}

// storylineResults is a minimal full-pipeline result set for summaries.
func storylineResults() []*domain.StageResult {
	retained := true
	return []*domain.StageResult{
		{
			Meta: domain.StageMeta{Stage: domain.StageOpenCoding, RecordsIn: 1, RecordsOut: 1},
			Records: []domain.Record{
				{ID: "r1", Index: 1, Question: "q", Text: "a", CodeIDs: []int{1}, Retained: &retained},
			},
			Codes: []domain.Code{{ID: 1, Label: "trust erosion", RecordIDs: []string{"r1"}}},
		},
		{
			Meta: domain.StageMeta{Stage: domain.StageStoryline, RecordsIn: 1, RecordsOut: 1},
			Storyline: &domain.Storyline{
				Narrative:    "Trust eroded.",
				CoreCategory: "relational breakdown",
				Anchors: []domain.Anchor{
					{Concept: "relational breakdown", Categories: []string{"broken trust"}, RecordIDs: []string{"r1"}},
				},
			},
		},
	}
}
