package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
	"github.com/strata-qda/strata-cli/internal/core/ports/driving"
	"github.com/strata-qda/strata-cli/internal/logger"
)

// StageServices maps each pipeline stage to its model service. Stages
// may share a service or use different models per the settings.
type StageServices map[domain.Stage]driven.LLMService

// Pipeline runs the five coding stages in order, persisting each stage's
// artifact before the next stage starts. It implements
// driving.PipelineRunner.
type Pipeline struct {
	llms      StageServices
	prompts   driven.PromptStore
	artifacts driven.ArtifactStore
	runs      driven.RunStore
	settings  domain.PipelineSettings

	mu       sync.Mutex
	progress *driving.RunProgress
}

// Interface compliance check.
var _ driving.PipelineRunner = (*Pipeline)(nil)

// NewPipeline creates the pipeline orchestrator. The run store may be
// nil; run history is then simply not recorded.
func NewPipeline(llms StageServices, prompts driven.PromptStore, artifacts driven.ArtifactStore, runs driven.RunStore, settings domain.PipelineSettings) *Pipeline {
	return &Pipeline{
		llms:      llms,
		prompts:   prompts,
		artifacts: artifacts,
		runs:      runs,
		settings:  settings,
	}
}

// Progress returns a snapshot of the active run, or nil when idle.
func (p *Pipeline) Progress() *driving.RunProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress == nil {
		return nil
	}
	snapshot := *p.progress
	return &snapshot
}

// Run executes the pipeline over the ingested records.
//
// With Resume set, stages whose artifacts exist are loaded instead of
// re-invoked. Resume stops at the first missing artifact: everything
// after it runs fresh even if a stale later artifact exists, so the
// chain of results always derives from one consistent execution.
func (p *Pipeline) Run(ctx context.Context, opts driving.RunOptions) ([]*domain.StageResult, error) {
	if len(opts.Records) == 0 {
		return nil, fmt.Errorf("%w: no records to process", domain.ErrInvalidInput)
	}

	p.mu.Lock()
	if p.progress != nil && p.progress.Running {
		p.mu.Unlock()
		return nil, domain.ErrRunInProgress
	}
	run := domain.Run{
		ID:          uuid.NewString(),
		InputPath:   opts.InputPath,
		OutputDir:   p.settings.OutputDir,
		RecordCount: len(opts.Records),
		Status:      domain.RunStatusRunning,
		StartedAt:   time.Now(),
	}
	p.progress = &driving.RunProgress{RunID: run.ID, Running: true}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.progress.Running = false
		p.mu.Unlock()
	}()

	if p.runs != nil {
		if err := p.runs.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
	}

	results, err := p.runStages(ctx, run, opts)

	run.CompletedAt = time.Now()
	if err != nil {
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = domain.RunStatusCompleted
	}
	if p.runs != nil {
		if ferr := p.runs.FinishRun(ctx, run); ferr != nil {
			logger.Warn("Could not record run outcome: %v", ferr)
		}
	}
	return results, err
}

func (p *Pipeline) runStages(ctx context.Context, run domain.Run, opts driving.RunOptions) ([]*domain.StageResult, error) {
	var (
		results []*domain.StageResult
		prior   *domain.StageResult
	)
	resuming := opts.Resume

	for _, stage := range domain.Stages() {
		p.setStage(stage)

		if resuming {
			loaded, ok, err := p.loadArtifact(ctx, stage)
			if err != nil {
				return results, err
			}
			if ok {
				logger.Info("Stage %s: resumed from existing artifact (%d records)", stage, len(loaded.Records))
				p.recordStageRun(ctx, run.ID, loaded, domain.RunStatusSkipped)
				results = append(results, loaded)
				prior = loaded
				continue
			}
			resuming = false
		}

		res, err := p.executeStage(ctx, stage, opts.Records, prior)
		p.recordStage(ctx, run.ID, stage, res, err)
		if err != nil {
			return results, err
		}

		if err := p.artifacts.SaveStageResult(ctx, res); err != nil {
			return results, fmt.Errorf("persist %s artifact: %w", stage, err)
		}

		results = append(results, res)
		prior = res
	}
	return results, nil
}

// executeStage builds the stage configuration and runs it over the
// correct input: open coding sees the ingested records, everything after
// it sees the previous stage's surviving records.
func (p *Pipeline) executeStage(ctx context.Context, stage domain.Stage, ingested []domain.Record, prior *domain.StageResult) (*domain.StageResult, error) {
	if stage != domain.StageOpenCoding && prior == nil {
		return nil, fmt.Errorf("stage %s: %w: no prior stage result", stage, domain.ErrStageOrder)
	}

	llm, ok := p.llms[stage]
	if !ok || llm == nil {
		return nil, fmt.Errorf("stage %s: %w: no model service configured", stage, domain.ErrConfiguration)
	}

	promptName := stagePromptName(stage)
	prompt, err := p.prompts.Load(promptName)
	if err != nil {
		return nil, fmt.Errorf("stage %s: load prompt: %w", stage, err)
	}
	version := p.prompts.Version(promptName)

	var cfg StageConfig
	input := ingested
	switch stage {
	case domain.StageOpenCoding:
		cfg = OpenCodingConfig(llm, prompt, version)
	case domain.StageFiltering:
		cfg = FilteringConfig(llm, prompt, version, p.settings.FilterBatchSize, prior)
		input = prior.Records
	case domain.StageAxialCoding:
		cfg = AxialCodingConfig(llm, prompt, version, prior)
		input = prior.Records
	case domain.StageSelectiveCoding:
		cfg = SelectiveCodingConfig(llm, prompt, version, prior)
		input = prior.Records
	case domain.StageStoryline:
		cfg = StorylineConfig(llm, prompt, version, prior)
		input = prior.Records
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, stage)
	}

	proc := NewStageProcessor(p.settings.Concurrency, p.addProgress)
	res, err := proc.Run(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("stage %s produced an invalid result: %w", stage, err)
	}
	return res, nil
}

// loadArtifact loads a stage's persisted result for resume.
func (p *Pipeline) loadArtifact(ctx context.Context, stage domain.Stage) (*domain.StageResult, bool, error) {
	has, err := p.artifacts.HasStage(ctx, stage)
	if err != nil {
		return nil, false, fmt.Errorf("check %s artifact: %w", stage, err)
	}
	if !has {
		return nil, false, nil
	}
	res, err := p.artifacts.LoadStageResult(ctx, stage)
	if err != nil {
		return nil, false, fmt.Errorf("load %s artifact: %w", stage, err)
	}
	if err := res.Validate(); err != nil {
		return nil, false, fmt.Errorf("%s artifact is invalid, re-run without resume: %w", stage, err)
	}
	return res, true, nil
}

func (p *Pipeline) recordStage(ctx context.Context, runID string, stage domain.Stage, res *domain.StageResult, runErr error) {
	if p.runs == nil {
		return
	}
	status := domain.RunStatusCompleted
	if runErr != nil {
		status = domain.RunStatusFailed
	}
	stageRun := domain.StageRun{
		RunID:  runID,
		Stage:  stage,
		Status: status,
	}
	if res != nil {
		stageRun.Model = res.Meta.Model
		stageRun.RecordsIn = res.Meta.RecordsIn
		stageRun.RecordsOut = res.Meta.RecordsOut
		stageRun.ErrorCount = res.Meta.ErrorCount
		stageRun.StartedAt = res.Meta.StartedAt
		stageRun.CompletedAt = res.Meta.CompletedAt
	}
	if err := p.runs.SaveStageRun(ctx, stageRun); err != nil {
		logger.Warn("Could not record stage %s: %v", stage, err)
	}
}

func (p *Pipeline) recordStageRun(ctx context.Context, runID string, res *domain.StageResult, status domain.RunStatus) {
	if p.runs == nil {
		return
	}
	stageRun := domain.StageRun{
		RunID:       runID,
		Stage:       res.Meta.Stage,
		Model:       res.Meta.Model,
		RecordsIn:   res.Meta.RecordsIn,
		RecordsOut:  res.Meta.RecordsOut,
		ErrorCount:  res.Meta.ErrorCount,
		Status:      status,
		StartedAt:   res.Meta.StartedAt,
		CompletedAt: res.Meta.CompletedAt,
	}
	if err := p.runs.SaveStageRun(ctx, stageRun); err != nil {
		logger.Warn("Could not record stage %s: %v", res.Meta.Stage, err)
	}
}

func (p *Pipeline) setStage(stage domain.Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress.Stage = stage
	p.progress.RecordsProcessed = 0
	p.progress.ErrorCount = 0
}

func (p *Pipeline) addProgress(recordsDone, errored int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress.RecordsProcessed += recordsDone
	p.progress.ErrorCount += errored
}

func stagePromptName(stage domain.Stage) string {
	switch stage {
	case domain.StageOpenCoding:
		return driven.PromptOpenCoding
	case domain.StageFiltering:
		return driven.PromptFiltering
	case domain.StageAxialCoding:
		return driven.PromptAxialCoding
	case domain.StageSelectiveCoding:
		return driven.PromptSelectiveCoding
	case domain.StageStoryline:
		return driven.PromptStoryline
	default:
		return string(stage)
	}
}
