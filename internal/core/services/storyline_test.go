package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// selectiveResult returns screened records plus the selective-coding
// result they came from.
func selectiveResult() ([]domain.Record, *domain.StageResult) {
	recs, prior := axialResult()
	return recs, &domain.StageResult{
		Meta:         domain.StageMeta{Stage: domain.StageSelectiveCoding},
		Codes:        prior.Codes,
		Categories:   prior.Categories,
		CoreCategory: "relational damage",
		Concepts: []domain.Concept{
			{
				Label:             "damaged bonds",
				Definition:        "loss of relational safety",
				CoveredCategories: []string{"broken trust", "withdrawal"},
				RecordIDs:         []string{"r1", "r2", "r3"},
			},
		},
	}
}

func TestStorylineAnchorsResolveToRecords(t *testing.T) {
	recs, prior := selectiveResult()

	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{
			"storyline": "Relational damage runs through every account.",
			"anchors": [
				{"concept": "damaged bonds", "axial_codes": ["broken trust"]},
				{"concept": "damaged bonds", "axial_codes": ["withdrawal"]}
			]
		}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), recs, StorylineConfig(llm, "prompt", "v1", prior))
	require.NoError(t, err)

	require.NotNil(t, res.Storyline)
	assert.Equal(t, "Relational damage runs through every account.", res.Storyline.Narrative)
	assert.Equal(t, "relational damage", res.Storyline.CoreCategory)

	require.Len(t, res.Storyline.Anchors, 2)
	assert.ElementsMatch(t, []string{"r1", "r3"}, res.Storyline.Anchors[0].RecordIDs)
	assert.ElementsMatch(t, []string{"r2", "r3"}, res.Storyline.Anchors[1].RecordIDs)
	assert.ElementsMatch(t, []string{"r1", "r2", "r3"}, res.Storyline.AnchoredRecordIDs())

	// Everything upstream carried forward for the final artifact.
	assert.Equal(t, prior.Codes, res.Codes)
	assert.Equal(t, prior.Categories, res.Categories)
	assert.Equal(t, prior.CoreCategory, res.CoreCategory)
	assert.Equal(t, prior.Concepts, res.Concepts)
	require.Len(t, res.RawResponses, 1)

	require.NoError(t, res.Validate())
}

func TestStorylineUnresolvableAnchorDropped(t *testing.T) {
	recs, prior := selectiveResult()

	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{
			"storyline": "narrative",
			"anchors": [
				{"concept": "damaged bonds", "axial_codes": ["broken trust"]},
				{"concept": "damaged bonds", "axial_codes": ["does not exist"]}
			]
		}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	res, err := proc.Run(context.Background(), recs, StorylineConfig(llm, "prompt", "v1", prior))
	require.NoError(t, err)

	require.Len(t, res.Storyline.Anchors, 1)
	joined := ""
	for _, w := range res.Warnings {
		joined += w + "\n"
	}
	assert.Contains(t, joined, `unknown axial code "does not exist"`)
	assert.Contains(t, joined, "resolved to no source records")
}

func TestStorylineAllAnchorsUnresolvableFails(t *testing.T) {
	recs, prior := selectiveResult()

	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		return `{
			"storyline": "narrative",
			"anchors": [{"concept": "damaged bonds", "axial_codes": ["does not exist"]}]
		}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), recs, StorylineConfig(llm, "prompt", "v1", prior))
	assert.ErrorIs(t, err, domain.ErrStageExhausted)
}

func TestStorylinePromptCarriesBoundedExamples(t *testing.T) {
	recs, prior := selectiveResult()

	// Give one category many long member codes; the prompt must cap and
	// truncate them.
	var extra []domain.Code
	for i := 0; i < 10; i++ {
		id := 10 + i
		extra = append(extra, domain.Code{
			ID:        id,
			Label:     "an unusually long open code label that keeps going well past the cap",
			RecordIDs: []string{"r1"},
		})
		prior.Categories[0].MemberCodeIDs = append(prior.Categories[0].MemberCodeIDs, id)
	}
	prior.Codes = append(prior.Codes, extra...)

	var captured string
	llm := &mockLLM{handler: func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
		captured = userContent(messages)
		return `{
			"storyline": "narrative",
			"anchors": [{"concept": "damaged bonds", "axial_codes": ["broken trust"]}]
		}`, nil
	}}

	proc := NewStageProcessor(1, nil)
	_, err := proc.Run(context.Background(), recs, StorylineConfig(llm, "prompt", "v1", prior))
	require.NoError(t, err)

	assert.Contains(t, captured, "relational damage")
	assert.Contains(t, captured, "damaged bonds")
	assert.NotContains(t, captured, "keeps going well past the cap")
}
