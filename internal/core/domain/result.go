package domain

import (
	"fmt"
	"sort"
	"time"
)

// StageMeta describes how a stage result was produced.
type StageMeta struct {
	// Stage is the pipeline stage that produced this result.
	Stage Stage `json:"stage"`

	// Model is the model identifier used for every call in the stage.
	Model string `json:"model"`

	// PromptVersion identifies the prompt template revision.
	PromptVersion string `json:"prompt_version"`

	// StartedAt and CompletedAt bound the stage's wall-clock execution.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// RecordsIn and RecordsOut count the stage's input and surviving
	// records. For filtering, RecordsOut counts retained records only.
	RecordsIn  int `json:"records_in"`
	RecordsOut int `json:"records_out"`

	// ErrorCount is the number of per-record failures.
	ErrorCount int `json:"error_count"`
}

// RecordError is a contained per-record failure. The record is excluded
// from the result set; the raw response is kept for manual review.
type RecordError struct {
	// RecordID identifies the failed record. Empty for batch-level
	// failures that could not be attributed to a single record.
	RecordID string `json:"record_id,omitempty"`

	// Message describes the failure.
	Message string `json:"message"`

	// RawResponse is the unparseable model output, if any.
	RawResponse string `json:"raw_response,omitempty"`
}

// StageResult is the complete output of one stage. It is owned by the
// orchestrator while the stage runs and handed to the next stage
// immutably (the next stage receives a copy of Records).
type StageResult struct {
	Meta StageMeta `json:"meta"`

	// Records are the successful records, in input order. After
	// filtering, only retained records appear here.
	Records []Record `json:"records"`

	// Excluded holds the records the filtering stage screened out,
	// with their exclude reasons. Empty for other stages.
	Excluded []Record `json:"excluded,omitempty"`

	// Codes is the global open-code table. Populated by open coding and
	// carried forward (filtered) by later stages.
	Codes []Code `json:"codes,omitempty"`

	// Categories are the axial groupings. Populated by axial coding.
	Categories []Category `json:"categories,omitempty"`

	// CoreCategory and Concepts are populated by selective coding.
	CoreCategory string    `json:"core_category,omitempty"`
	Concepts     []Concept `json:"concepts,omitempty"`

	// Storyline is populated by the terminal stage.
	Storyline *Storyline `json:"storyline,omitempty"`

	// Errors are contained per-record failures.
	Errors []RecordError `json:"errors,omitempty"`

	// Warnings are non-fatal stage-level findings, e.g. coverage gaps in
	// selective coding or dropped zero-anchor groupings.
	Warnings []string `json:"warnings,omitempty"`

	// RawResponses preserves the unprocessed model output for
	// corpus-level stages so it can be dumped to raw.txt for review.
	RawResponses []string `json:"raw_responses,omitempty"`
}

// SortRecords restores input order after concurrent batch processing.
func (r *StageResult) SortRecords() {
	sort.Slice(r.Records, func(i, j int) bool {
		return r.Records[i].Index < r.Records[j].Index
	})
	sort.Slice(r.Excluded, func(i, j int) bool {
		return r.Excluded[i].Index < r.Excluded[j].Index
	})
}

// RecordByID returns the record with the given ID, or nil.
func (r *StageResult) RecordByID(id string) *Record {
	for i := range r.Records {
		if r.Records[i].ID == id {
			return &r.Records[i]
		}
	}
	return nil
}

// CodeByID returns the code with the given ID, or nil.
func (r *StageResult) CodeByID(id int) *Code {
	for i := range r.Codes {
		if r.Codes[i].ID == id {
			return &r.Codes[i]
		}
	}
	return nil
}

// CategoryByLabel returns the category with the given label, or nil.
func (r *StageResult) CategoryByLabel(label string) *Category {
	label = NormaliseLabel(label)
	for i := range r.Categories {
		if r.Categories[i].Label == label {
			return &r.Categories[i]
		}
	}
	return nil
}

// PruneUnanchored enforces the evidence-anchoring invariant: any code,
// category or concept with zero supporting record IDs is removed and
// reported as a warning. A derived grouping that cites no source record
// cannot be audited and is worthless to the analysis.
func (r *StageResult) PruneUnanchored() {
	kept := r.Codes[:0]
	for _, c := range r.Codes {
		if len(c.RecordIDs) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("dropped code %q: no supporting records", c.Label))
			continue
		}
		kept = append(kept, c)
	}
	r.Codes = kept

	keptCats := r.Categories[:0]
	for _, c := range r.Categories {
		if len(c.RecordIDs) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("dropped category %q: no supporting records", c.Label))
			continue
		}
		keptCats = append(keptCats, c)
	}
	r.Categories = keptCats

	keptConcepts := r.Concepts[:0]
	for _, c := range r.Concepts {
		if len(c.RecordIDs) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("dropped concept %q: no supporting records", c.Label))
			continue
		}
		keptConcepts = append(keptConcepts, c)
	}
	r.Concepts = keptConcepts
}

// Validate checks the structural invariants of a completed stage result.
func (r *StageResult) Validate() error {
	if !r.Meta.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidInput, r.Meta.Stage)
	}

	ids := make(map[string]struct{}, len(r.Records))
	for _, rec := range r.Records {
		if rec.ID == "" {
			return fmt.Errorf("%w: record with empty id", ErrInvalidInput)
		}
		if _, dup := ids[rec.ID]; dup {
			return fmt.Errorf("%w: duplicate record id %s", ErrInvalidInput, rec.ID)
		}
		ids[rec.ID] = struct{}{}
	}

	for _, c := range r.Codes {
		if len(c.RecordIDs) == 0 {
			return fmt.Errorf("%w: code %q has no supporting records", ErrInvalidInput, c.Label)
		}
	}
	for _, c := range r.Categories {
		if len(c.RecordIDs) == 0 {
			return fmt.Errorf("%w: category %q has no supporting records", ErrInvalidInput, c.Label)
		}
	}
	for _, c := range r.Concepts {
		if len(c.RecordIDs) == 0 {
			return fmt.Errorf("%w: concept %q has no supporting records", ErrInvalidInput, c.Label)
		}
	}

	if r.Storyline != nil {
		if r.Storyline.Narrative == "" {
			return fmt.Errorf("%w: storyline narrative is empty", ErrInvalidInput)
		}
		if len(r.Storyline.Anchors) == 0 {
			return fmt.Errorf("%w: storyline has no anchors", ErrInvalidInput)
		}
		for _, a := range r.Storyline.Anchors {
			if len(a.RecordIDs) == 0 {
				return fmt.Errorf("%w: anchor %q resolves to no records", ErrInvalidInput, a.Concept)
			}
		}
	}

	return nil
}
