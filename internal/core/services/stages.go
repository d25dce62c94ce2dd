package services

import (
	"fmt"
	"time"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

// Per-stage invocation timeouts. The later stages reason over the whole
// corpus in one call and need considerably more time.
const (
	openCodingTimeout      = 120 * time.Second
	filteringTimeout       = 180 * time.Second
	axialCodingTimeout     = 240 * time.Second
	selectiveCodingTimeout = 300 * time.Second
	storylineTimeout       = 420 * time.Second
)

// excerptCharLimit caps member-code excerpts in the selective payload.
const excerptCharLimit = 220

// Storyline payload limits: at most this many open-code examples per
// axial theme, each truncated.
const (
	maxOpenExamplesPerTheme = 6
	openExampleCharLimit    = 28
)

// truncate shortens a string to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// requireCoded rejects records that never went through open coding.
// Stage ordering is a hard dependency, not a convention: later prompts
// are built from earlier annotations.
func requireCoded(input []domain.Record) error {
	for _, rec := range input {
		if !rec.IsCoded() {
			return fmt.Errorf("%w: record %s has no open codes", domain.ErrStageOrder, rec.ID)
		}
	}
	return nil
}

// requireScreened rejects records that skipped the filtering stage.
func requireScreened(input []domain.Record) error {
	if err := requireCoded(input); err != nil {
		return err
	}
	for _, rec := range input {
		if rec.Retained == nil {
			return fmt.Errorf("%w: record %s was never screened", domain.ErrStageOrder, rec.ID)
		}
	}
	return nil
}

// passthroughRecords copies the batch unchanged; corpus-level stages
// annotate the corpus, not individual records.
func passthroughRecords(batch []domain.Record) []domain.Record {
	return domain.CloneRecords(batch)
}
