package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageResult_SortRecords(t *testing.T) {
	r := StageResult{
		Records: []Record{
			{ID: "c", Index: 2},
			{ID: "a", Index: 0},
			{ID: "b", Index: 1},
		},
	}
	r.SortRecords()

	assert.Equal(t, "a", r.Records[0].ID)
	assert.Equal(t, "b", r.Records[1].ID)
	assert.Equal(t, "c", r.Records[2].ID)
}

func TestStageResult_PruneUnanchored(t *testing.T) {
	r := StageResult{
		Codes: []Code{
			{ID: 1, Label: "anchored", RecordIDs: []string{"r1"}},
			{ID: 2, Label: "floating"},
		},
		Categories: []Category{
			{Label: "grounded", RecordIDs: []string{"r1"}},
			{Label: "orphan"},
		},
		Concepts: []Concept{
			{Label: "supported", RecordIDs: []string{"r1"}},
			{Label: "unsupported"},
		},
	}

	r.PruneUnanchored()

	require.Len(t, r.Codes, 1)
	assert.Equal(t, "anchored", r.Codes[0].Label)
	require.Len(t, r.Categories, 1)
	assert.Equal(t, "grounded", r.Categories[0].Label)
	require.Len(t, r.Concepts, 1)
	assert.Equal(t, "supported", r.Concepts[0].Label)
	assert.Len(t, r.Warnings, 3)
}

func TestStageResult_Validate(t *testing.T) {
	valid := StageResult{
		Meta:    StageMeta{Stage: StageOpenCoding},
		Records: []Record{{ID: "r1"}, {ID: "r2"}},
		Codes:   []Code{{ID: 1, Label: "c", RecordIDs: []string{"r1"}}},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *StageResult)
	}{
		{"unknown stage", func(r *StageResult) { r.Meta.Stage = "bogus" }},
		{"empty record id", func(r *StageResult) { r.Records[0].ID = "" }},
		{"duplicate record id", func(r *StageResult) { r.Records[1].ID = "r1" }},
		{"unanchored code", func(r *StageResult) { r.Codes[0].RecordIDs = nil }},
		{"unanchored category", func(r *StageResult) {
			r.Categories = []Category{{Label: "cat"}}
		}},
		{"unanchored concept", func(r *StageResult) {
			r.Concepts = []Concept{{Label: "concept"}}
		}},
		{"empty storyline", func(r *StageResult) {
			r.Storyline = &Storyline{Anchors: []Anchor{{RecordIDs: []string{"r1"}}}}
		}},
		{"storyline without anchors", func(r *StageResult) {
			r.Storyline = &Storyline{Narrative: "text"}
		}},
		{"anchor without records", func(r *StageResult) {
			r.Storyline = &Storyline{Narrative: "text", Anchors: []Anchor{{Concept: "c"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := StageResult{
				Meta:    StageMeta{Stage: StageOpenCoding},
				Records: []Record{{ID: "r1"}, {ID: "r2"}},
				Codes:   []Code{{ID: 1, Label: "c", RecordIDs: []string{"r1"}}},
			}
			tt.mutate(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidInput)
		})
	}
}

func TestStageResult_Lookups(t *testing.T) {
	r := StageResult{
		Records:    []Record{{ID: "r1"}},
		Codes:      []Code{{ID: 3, Label: "c3", RecordIDs: []string{"r1"}}},
		Categories: []Category{{Label: "cat one", RecordIDs: []string{"r1"}}},
	}

	require.NotNil(t, r.RecordByID("r1"))
	assert.Nil(t, r.RecordByID("missing"))

	require.NotNil(t, r.CodeByID(3))
	assert.Nil(t, r.CodeByID(4))

	// Label lookup normalises whitespace.
	require.NotNil(t, r.CategoryByLabel("  cat   one "))
	assert.Nil(t, r.CategoryByLabel("cat two"))
}
