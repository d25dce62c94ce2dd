package services

import (
	"encoding/json"
	"fmt"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// storylineResponse is the expected model reply for the corpus call.
type storylineResponse struct {
	Storyline string `json:"storyline"`
	Anchors   []struct {
		Concept    string   `json:"concept"`
		AxialCodes []string `json:"axial_codes"`
	} `json:"anchors"`
}

// StorylineConfig builds the stage configuration for the storyline
// synthesis. One corpus-level call writes the narrative around the core
// category; the reply's anchors are resolved back to source records so
// every claim in the narrative stays traceable.
func StorylineConfig(llm driven.LLMService, prompt, promptVersion string, prior *domain.StageResult) StageConfig {
	return StageConfig{
		Stage:         domain.StageStoryline,
		LLM:           llm,
		SystemPrompt:  prompt,
		PromptVersion: promptVersion,
		Schema:        StageSchema(domain.StageStoryline),
		BatchSize:     0,
		CallTimeout:   storylineTimeout,
		KeepRaw:       true,
		Precheck:      requireScreened,
		BuildPrompt: func(batch []domain.Record) (string, error) {
			return buildStorylinePrompt(prior)
		},
		Parse: func(rawJSON []byte, batch []domain.Record) (*BatchOutcome, error) {
			return parseStoryline(rawJSON, batch, prior)
		},
		Finalise: func(res *domain.StageResult) error {
			res.Codes = prior.Codes
			res.Categories = prior.Categories
			res.CoreCategory = prior.CoreCategory
			res.Concepts = prior.Concepts
			return nil
		},
	}
}

func buildStorylinePrompt(prior *domain.StageResult) (string, error) {
	type conceptItem struct {
		Concept    string   `json:"concept"`
		Definition string   `json:"definition,omitempty"`
		AxialCodes []string `json:"axial_codes"`
	}
	type themeItem struct {
		AxialCode string   `json:"axial_code"`
		Examples  []string `json:"open_code_examples"`
	}

	concepts := make([]conceptItem, 0, len(prior.Concepts))
	for _, c := range prior.Concepts {
		concepts = append(concepts, conceptItem{
			Concept:    c.Label,
			Definition: c.Definition,
			AxialCodes: c.CoveredCategories,
		})
	}

	themes := make([]themeItem, 0, len(prior.Categories))
	for i := range prior.Categories {
		cat := &prior.Categories[i]
		labels := cat.MemberLabels(prior.Codes)
		if len(labels) > maxOpenExamplesPerTheme {
			labels = labels[:maxOpenExamplesPerTheme]
		}
		examples := make([]string, len(labels))
		for j, l := range labels {
			examples[j] = truncate(l, openExampleCharLimit)
		}
		themes = append(themes, themeItem{AxialCode: cat.Label, Examples: examples})
	}

	payload, err := json.Marshal(map[string]any{
		"core_category":      prior.CoreCategory,
		"aggregate_concepts": concepts,
		"axial_themes":       themes,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Below is the selective-coding result (JSON):\n%s\n\n"+
			"Write the storyline around the core category as instructed. For every passage, "+
			"anchor the concept and the axial codes it draws on. Reply with JSON only.",
		payload), nil
}

func parseStoryline(rawJSON []byte, batch []domain.Record, prior *domain.StageResult) (*BatchOutcome, error) {
	var resp storylineResponse
	if err := json.Unmarshal(rawJSON, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if resp.Storyline == "" {
		return nil, fmt.Errorf("%w: empty storyline", domain.ErrMalformedResponse)
	}

	catByLabel := make(map[string]*domain.Category, len(prior.Categories))
	for i := range prior.Categories {
		catByLabel[prior.Categories[i].Label] = &prior.Categories[i]
	}

	outcome := &BatchOutcome{Records: passthroughRecords(batch)}
	story := &domain.Storyline{
		Narrative:    resp.Storyline,
		CoreCategory: prior.CoreCategory,
	}

	for _, a := range resp.Anchors {
		anchor := domain.Anchor{Concept: domain.NormaliseLabel(a.Concept)}
		for _, raw := range a.AxialCodes {
			label := domain.NormaliseLabel(raw)
			cat, known := catByLabel[label]
			if !known {
				outcome.Warnings = append(outcome.Warnings,
					fmt.Sprintf("anchor %q cites unknown axial code %q", anchor.Concept, label))
				continue
			}
			anchor.Categories = append(anchor.Categories, label)
			anchor.RecordIDs = domain.UnionRecordIDs(anchor.RecordIDs, cat.RecordIDs)
		}
		if len(anchor.RecordIDs) == 0 {
			outcome.Warnings = append(outcome.Warnings,
				fmt.Sprintf("anchor %q resolved to no source records, dropped", anchor.Concept))
			continue
		}
		story.Anchors = append(story.Anchors, anchor)
	}

	if len(story.Anchors) == 0 {
		return nil, fmt.Errorf("%w: no anchor resolved to source records", domain.ErrMalformedResponse)
	}

	outcome.Storyline = story
	return outcome, nil
}
