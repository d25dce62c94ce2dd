package services

import (
	"encoding/json"
	"fmt"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// selectiveResponse is the expected model reply for the corpus call.
type selectiveResponse struct {
	CoreCategory      string `json:"core_category"`
	AggregateConcepts []struct {
		Concept           string   `json:"concept"`
		Definition        string   `json:"definition"`
		CoveredAxialCodes []string `json:"covered_axial_codes"`
	} `json:"aggregate_concepts"`
}

// SelectiveCodingConfig builds the stage configuration for selective
// coding. One corpus-level call picks the core category and partitions
// the axial categories into aggregate concepts; the raw reply is kept
// for manual review.
func SelectiveCodingConfig(llm driven.LLMService, prompt, promptVersion string, prior *domain.StageResult) StageConfig {
	return StageConfig{
		Stage:         domain.StageSelectiveCoding,
		LLM:           llm,
		SystemPrompt:  prompt,
		PromptVersion: promptVersion,
		Schema:        StageSchema(domain.StageSelectiveCoding),
		BatchSize:     0,
		CallTimeout:   selectiveCodingTimeout,
		KeepRaw:       true,
		Precheck:      requireScreened,
		BuildPrompt: func(batch []domain.Record) (string, error) {
			return buildSelectivePrompt(prior.Categories, prior.Codes)
		},
		Parse: func(rawJSON []byte, batch []domain.Record) (*BatchOutcome, error) {
			return parseSelectiveCoding(rawJSON, batch, prior.Categories)
		},
		Finalise: func(res *domain.StageResult) error {
			res.Codes = prior.Codes
			res.Categories = prior.Categories
			validateConceptCoverage(res)
			return nil
		},
	}
}

func buildSelectivePrompt(categories []domain.Category, codes []domain.Code) (string, error) {
	type item struct {
		AxialCode   string `json:"axial_code"`
		MemberCodes string `json:"member_open_codes_excerpt"`
	}
	items := make([]item, 0, len(categories))
	for i := range categories {
		cat := &categories[i]
		labels := cat.MemberLabels(codes)
		joined := ""
		for j, l := range labels {
			if j > 0 {
				joined += "; "
			}
			joined += l
		}
		items = append(items, item{
			AxialCode:   cat.Label,
			MemberCodes: truncate(joined, excerptCharLimit),
		})
	}

	payload, err := json.Marshal(map[string]any{"axial_codes": items})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Below are the axial categories with excerpts of their member open codes (JSON):\n%s\n\n"+
			"Select the core category and group every axial code into aggregate concepts "+
			"as instructed. Each axial code belongs to exactly one concept. Reply with JSON only.",
		payload), nil
}

func parseSelectiveCoding(rawJSON []byte, batch []domain.Record, categories []domain.Category) (*BatchOutcome, error) {
	var resp selectiveResponse
	if err := json.Unmarshal(rawJSON, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	core := domain.NormaliseLabel(resp.CoreCategory)
	if core == "" {
		return nil, fmt.Errorf("%w: empty core category", domain.ErrMalformedResponse)
	}

	catByLabel := make(map[string]*domain.Category, len(categories))
	for i := range categories {
		catByLabel[categories[i].Label] = &categories[i]
	}

	outcome := &BatchOutcome{
		Records:      passthroughRecords(batch),
		CoreCategory: core,
	}

	for _, ac := range resp.AggregateConcepts {
		label := domain.NormaliseLabel(ac.Concept)
		if label == "" {
			continue
		}
		concept := domain.Concept{Label: label, Definition: ac.Definition}
		for _, raw := range ac.CoveredAxialCodes {
			covered := domain.NormaliseLabel(raw)
			cat, known := catByLabel[covered]
			if !known {
				outcome.Warnings = append(outcome.Warnings,
					fmt.Sprintf("concept %q covers unknown category %q", label, covered))
				continue
			}
			concept.CoveredCategories = append(concept.CoveredCategories, covered)
			concept.RecordIDs = domain.UnionRecordIDs(concept.RecordIDs, cat.RecordIDs)
		}
		outcome.Concepts = append(outcome.Concepts, concept)
	}

	if len(outcome.Concepts) == 0 {
		return nil, fmt.Errorf("%w: no usable aggregate concepts in response", domain.ErrMalformedResponse)
	}
	return outcome, nil
}

// validateConceptCoverage checks that the concepts partition the axial
// categories: every category covered exactly once, nothing invented.
// Gaps become warnings, not failures; the analyst reviews them.
func validateConceptCoverage(res *domain.StageResult) {
	covered := make(map[string]int)
	for _, concept := range res.Concepts {
		for _, label := range concept.CoveredCategories {
			covered[label]++
		}
	}

	for _, cat := range res.Categories {
		switch covered[cat.Label] {
		case 0:
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("category %q not covered by any concept", cat.Label))
		case 1:
		default:
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("category %q covered by %d concepts", cat.Label, covered[cat.Label]))
		}
	}

	known := make(map[string]struct{}, len(res.Categories))
	for _, cat := range res.Categories {
		known[cat.Label] = struct{}{}
	}
	for label := range covered {
		if _, ok := known[label]; !ok {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("concepts cover category %q that no axial grouping produced", label))
		}
	}
}
