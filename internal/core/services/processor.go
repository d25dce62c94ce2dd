package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
	"github.com/strata-qda/strata-cli/internal/logger"
)

// StageConfig parameterises the generic stage processor. The five
// pipeline stages are five values of this type, not five processors:
// each supplies its prompt, its response schema, its batching policy and
// its parser, and the processor supplies everything else.
type StageConfig struct {
	// Stage identifies the pipeline stage.
	Stage domain.Stage

	// LLM is the model service for this stage (already wrapped with
	// retry/backoff by the factory).
	LLM driven.LLMService

	// SystemPrompt is the stage's coding instruction.
	SystemPrompt string

	// PromptVersion is recorded in stage metadata.
	PromptVersion string

	// Schema validates the parsed response document. Nil skips validation.
	Schema *jsonschema.Schema

	// BatchSize controls how many records go into one model call:
	// 1 calls per record, n>1 calls per chunk of n, and 0 sends the whole
	// input in a single corpus-level call.
	BatchSize int

	// SplitOnFailure retries a failed multi-record batch as two halves
	// instead of failing every record in it. Single records fail alone.
	SplitOnFailure bool

	// CallTimeout bounds each invocation. Zero leaves only the HTTP
	// client timeout.
	CallTimeout time.Duration

	// KeepRaw preserves raw model output on the result (corpus stages
	// dump it to raw.txt for manual review).
	KeepRaw bool

	// Precheck rejects out-of-order input before any call is made.
	Precheck func(input []domain.Record) error

	// BuildPrompt renders the user message for one batch.
	BuildPrompt func(batch []domain.Record) (string, error)

	// Parse turns salvaged, schema-valid response JSON into an outcome.
	// Parse errors must wrap domain.ErrMalformedResponse.
	Parse func(rawJSON []byte, batch []domain.Record) (*BatchOutcome, error)

	// Finalise runs once after all batches merged and records re-ordered,
	// e.g. to merge the code table or validate concept coverage.
	Finalise func(res *domain.StageResult) error
}

// BatchOutcome is what one batch contributes to the stage result.
type BatchOutcome struct {
	Records      []domain.Record
	Excluded     []domain.Record
	Codes        []domain.Code
	Categories   []domain.Category
	CoreCategory string
	Concepts     []domain.Concept
	Storyline    *domain.Storyline
	Errors       []domain.RecordError
	Warnings     []string

	raw   string
	fatal error
}

// ProgressFunc receives per-batch deltas while a stage runs.
type ProgressFunc func(recordsDone, errored int)

// StageProcessor executes one stage configuration over an input record
// set. Batches are independent and run through a bounded worker pool;
// results are merged append-only under a lock and restored to input
// order at the end, so concurrency never changes the output files.
type StageProcessor struct {
	concurrency int
	notify      ProgressFunc
}

// NewStageProcessor creates a processor with the given worker width.
// Width 1 processes batches strictly in sequence.
func NewStageProcessor(concurrency int, notify ProgressFunc) *StageProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &StageProcessor{concurrency: concurrency, notify: notify}
}

// Run executes the stage over the input records.
//
// Failure containment: a record that fails (transport exhausted or
// malformed response) becomes a RecordError and is excluded from the
// result; the stage keeps going. The stage fails fatally only when no
// record succeeds (domain.ErrStageExhausted), on a configuration error,
// or on cancellation. Cancellation stops issuing new invocations and
// lets in-flight calls finish; a cancelled stage returns an error and is
// never committed.
func (p *StageProcessor) Run(ctx context.Context, input []domain.Record, cfg StageConfig) (*domain.StageResult, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("stage %s: %w: no input records", cfg.Stage, domain.ErrInvalidInput)
	}
	if cfg.Precheck != nil {
		if err := cfg.Precheck(input); err != nil {
			return nil, fmt.Errorf("stage %s: %w", cfg.Stage, err)
		}
	}

	res := &domain.StageResult{
		Meta: domain.StageMeta{
			Stage:         cfg.Stage,
			Model:         cfg.LLM.ModelName(),
			PromptVersion: cfg.PromptVersion,
			StartedAt:     time.Now(),
			RecordsIn:     len(input),
		},
	}

	batches := splitBatches(input, cfg.BatchSize)
	logger.Info("Stage %s: %d records in %d batches", cfg.Stage, len(input), len(batches))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		fatal error
	)
	sem := make(chan struct{}, p.concurrency)

dispatch:
	for _, batch := range batches {
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			break dispatch
		}

		wg.Add(1)
		go func(batch []domain.Record) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := p.processBatch(runCtx, cfg, batch)

			mu.Lock()
			if outcome.fatal != nil {
				if fatal == nil {
					fatal = outcome.fatal
				}
				cancel()
			} else {
				mergeOutcome(res, outcome, cfg.KeepRaw)
			}
			mu.Unlock()

			if p.notify != nil && outcome.fatal == nil {
				p.notify(len(outcome.Records)+len(outcome.Excluded), len(outcome.Errors))
			}
		}(batch)
	}
	wg.Wait()

	if fatal != nil {
		return nil, fmt.Errorf("stage %s: %w", cfg.Stage, fatal)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("stage %s aborted: %w", cfg.Stage, err)
	}

	res.SortRecords()

	if cfg.Finalise != nil {
		if err := cfg.Finalise(res); err != nil {
			return nil, fmt.Errorf("stage %s: %w", cfg.Stage, err)
		}
	}
	res.PruneUnanchored()

	res.Meta.CompletedAt = time.Now()
	res.Meta.RecordsOut = len(res.Records)
	res.Meta.ErrorCount = len(res.Errors)

	if len(res.Records)+len(res.Excluded) == 0 {
		return nil, fmt.Errorf("stage %s: %w (%d records attempted)",
			cfg.Stage, domain.ErrStageExhausted, len(input))
	}

	return res, nil
}

// processBatch invokes the model for one batch, splitting recursively on
// failure when the config allows it.
func (p *StageProcessor) processBatch(ctx context.Context, cfg StageConfig, batch []domain.Record) *BatchOutcome {
	outcome, raw, err := p.invokeBatch(ctx, cfg, batch)
	if err == nil {
		return outcome
	}

	if errors.Is(err, domain.ErrConfiguration) {
		return &BatchOutcome{fatal: err}
	}
	if ctx.Err() != nil {
		return &BatchOutcome{fatal: ctx.Err()}
	}

	if cfg.SplitOnFailure && len(batch) > 1 {
		logger.Warn("Stage %s: batch of %d failed (%v), splitting", cfg.Stage, len(batch), err)
		mid := len(batch) / 2
		left := p.processBatch(ctx, cfg, batch[:mid])
		if left.fatal != nil {
			return left
		}
		right := p.processBatch(ctx, cfg, batch[mid:])
		if right.fatal != nil {
			return right
		}
		return combineOutcomes(left, right)
	}

	logger.Warn("Stage %s: batch of %d failed: %v", cfg.Stage, len(batch), err)
	failed := &BatchOutcome{}
	for _, rec := range batch {
		failed.Errors = append(failed.Errors, domain.RecordError{
			RecordID:    rec.ID,
			Message:     err.Error(),
			RawResponse: raw,
		})
	}
	return failed
}

// invokeBatch performs one model call and parses the reply.
// The returned raw string is the unparsed model output, kept on errors
// so malformed responses can be reviewed by hand.
func (p *StageProcessor) invokeBatch(ctx context.Context, cfg StageConfig, batch []domain.Record) (*BatchOutcome, string, error) {
	user, err := cfg.BuildPrompt(batch)
	if err != nil {
		return nil, "", err
	}

	callCtx := ctx
	if cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
	}

	rawText, err := cfg.LLM.Chat(callCtx, []driven.ChatMessage{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: user},
	}, driven.ChatOptions{Temperature: 0})
	if err != nil {
		return nil, "", err
	}

	rawJSON, doc, err := ExtractJSON(rawText)
	if err != nil {
		return nil, rawText, err
	}
	if cfg.Schema != nil {
		if err := cfg.Schema.Validate(doc); err != nil {
			return nil, rawText, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
		}
	}

	outcome, err := cfg.Parse(rawJSON, batch)
	if err != nil {
		return nil, rawText, err
	}
	outcome.raw = rawText
	return outcome, rawText, nil
}

// splitBatches chunks the input. Size 0 means one corpus-level batch.
func splitBatches(input []domain.Record, size int) [][]domain.Record {
	if size <= 0 || size >= len(input) {
		return [][]domain.Record{input}
	}
	var out [][]domain.Record
	for start := 0; start < len(input); start += size {
		end := start + size
		if end > len(input) {
			end = len(input)
		}
		out = append(out, input[start:end])
	}
	return out
}

// mergeOutcome folds one batch outcome into the stage result.
// Caller holds the result lock.
func mergeOutcome(res *domain.StageResult, o *BatchOutcome, keepRaw bool) {
	res.Records = append(res.Records, o.Records...)
	res.Excluded = append(res.Excluded, o.Excluded...)
	res.Codes = append(res.Codes, o.Codes...)
	res.Categories = append(res.Categories, o.Categories...)
	res.Concepts = append(res.Concepts, o.Concepts...)
	res.Errors = append(res.Errors, o.Errors...)
	res.Warnings = append(res.Warnings, o.Warnings...)
	if o.CoreCategory != "" {
		res.CoreCategory = o.CoreCategory
	}
	if o.Storyline != nil {
		res.Storyline = o.Storyline
	}
	if keepRaw && o.raw != "" {
		res.RawResponses = append(res.RawResponses, o.raw)
	}
}

// combineOutcomes merges the outcomes of a split batch.
func combineOutcomes(a, b *BatchOutcome) *BatchOutcome {
	return &BatchOutcome{
		Records:    append(a.Records, b.Records...),
		Excluded:   append(a.Excluded, b.Excluded...),
		Codes:      append(a.Codes, b.Codes...),
		Categories: append(a.Categories, b.Categories...),
		Concepts:   append(a.Concepts, b.Concepts...),
		Errors:     append(a.Errors, b.Errors...),
		Warnings:   append(a.Warnings, b.Warnings...),
	}
}
