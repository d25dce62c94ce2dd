package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// axialResult returns screened records plus the axial-coding result they
// came from.
func axialResult() ([]domain.Record, *domain.StageResult) {
	recs, prior := screenedRecords()
	return recs, &domain.StageResult{
		Meta:  domain.StageMeta{Stage: domain.StageAxialCoding},
		Codes: prior.Codes,
		Categories: []domain.Category{
			{Label: "broken trust", MemberCodeIDs: []int{1}, RecordIDs: []string{"r1", "r3"}},
			{Label: "withdrawal", MemberCodeIDs: []int{2}, RecordIDs: []string{"r2", "r3"}},
		},
	}
}

func TestSelectiveCodingAggregatesConcepts(t *testing.T) {
	recs, prior := axialResult()

	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{
			"core_category": "relational damage",
			"aggregate_concepts": [
				{"concept": "damaged bonds", "definition": "loss of relational safety", "covered_axial_codes": ["broken trust", "withdrawal"]}
			]
		}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), recs, SelectiveCodingConfig(llm, "prompt", "v1", prior))
	require.NoError(t, err)

	assert.Equal(t, "relational damage", res.CoreCategory)
	require.Len(t, res.Concepts, 1)
	assert.Equal(t, "damaged bonds", res.Concepts[0].Label)
	assert.Equal(t, "loss of relational safety", res.Concepts[0].Definition)
	assert.Equal(t, []string{"broken trust", "withdrawal"}, res.Concepts[0].CoveredCategories)
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, res.Concepts[0].RecordIDs)

	// Full coverage: no warnings expected.
	assert.Empty(t, res.Warnings)

	// Prior structures carried forward, raw reply kept for review.
	assert.Equal(t, prior.Codes, res.Codes)
	assert.Equal(t, prior.Categories, res.Categories)
	require.Len(t, res.RawResponses, 1)
	assert.Contains(t, res.RawResponses[0], "relational damage")
}

func TestSelectiveCodingCoverageWarnings(t *testing.T) {
	recs, prior := axialResult()

	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		// "withdrawal" is covered twice, "broken trust" not at all, and
		// "invented" does not exist.
		return `{
			"core_category": "relational damage",
			"aggregate_concepts": [
				{"concept": "a", "definition": "", "covered_axial_codes": ["withdrawal", "invented"]},
				{"concept": "b", "definition": "", "covered_axial_codes": ["withdrawal"]}
			]
		}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), recs, SelectiveCodingConfig(llm, "prompt", "v1", prior))
	require.NoError(t, err)

	joined := ""
	for _, w := range res.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, `"broken trust" not covered`)
	assert.Contains(t, joined, `"withdrawal" covered by 2 concepts`)
	assert.Contains(t, joined, `unknown category "invented"`)
}

func TestSelectiveCodingEmptyCoreCategoryFails(t *testing.T) {
	recs, prior := axialResult()

	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{"core_category": "  ", "aggregate_concepts": [{"concept": "c", "covered_axial_codes": ["withdrawal"]}]}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), recs, SelectiveCodingConfig(llm, "prompt", "v1", prior))
	assert.ErrorIs(t, err, domain.ErrStageExhausted)
}

func TestSelectiveCodingPromptCarriesMemberExcerpts(t *testing.T) {
	recs, prior := axialResult()

	var captured string
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		captured = userContent(messages)
		return `{
			"core_category": "relational damage",
			"aggregate_concepts": [
				{"concept": "damaged bonds", "definition": "", "covered_axial_codes": ["broken trust", "withdrawal"]}
			]
		}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), recs, SelectiveCodingConfig(llm, "prompt", "v1", prior))
	require.NoError(t, err)

	assert.Contains(t, captured, "broken trust")
	assert.Contains(t, captured, "trust erosion")
	assert.Contains(t, captured, "isolation")
}
