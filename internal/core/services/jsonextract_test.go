package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-qda/strata-cli/internal/core/domain"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain object",
			input: `{"codes": []}`,
			want:  `{"codes": []}`,
		},
		{
			name:  "fenced json block",
			input: "```json\n{\"codes\": [{\"code\": \"x\"}]}\n```",
			want:  `{"codes": [{"code": "x"}]}`,
		},
		{
			name:  "fence without language tag",
			input: "```\n{\"retain\": true}\n```",
			want:  `{"retain": true}`,
		},
		{
			name:  "prose around the object",
			input: `Here is the result: {"storyline": "text"} hope that helps`,
			want:  `{"storyline": "text"}`,
		},
		{
			name:  "leading and trailing whitespace",
			input: "\n\n  {\"a\": 1}  \n",
			want:  `{"a": 1}`,
		},
		{
			name:    "no json at all",
			input:   "I could not produce a result.",
			wantErr: true,
		},
		{
			name:    "unbalanced braces",
			input:   `{"codes": [`,
			wantErr: true,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, doc, err := ExtractJSON(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrMalformedResponse)
				return
			}

			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
			assert.NotNil(t, doc)
		})
	}
}

func TestStageSchemaCompiled(t *testing.T) {
	for _, stage := range domain.Stages() {
		assert.NotNil(t, StageSchema(stage), "schema for %s", stage)
	}
}

func TestStageSchemaRejectsWrongShape(t *testing.T) {
	_, doc, err := ExtractJSON(`{"codes": "not an array"}`)
	require.NoError(t, err)

	err = StageSchema(domain.StageOpenCoding).Validate(doc)
	assert.Error(t, err)
}

func TestStageSchemaAcceptsValidResponse(t *testing.T) {
	tests := []struct {
		stage domain.Stage
		body  string
	}{
		{domain.StageOpenCoding, `{"codes": [{"code": "trust erosion", "span": "I stopped believing"}]}`},
		{domain.StageFiltering, `{"filtering": [{"id": 1, "retain": false, "exclude_reason": "off topic"}]}`},
		{domain.StageAxialCoding, `{"axial_coding": [{"axial_code": "trust", "member_ids": [1, 2]}]}`},
		{domain.StageSelectiveCoding, `{"core_category": "trust", "aggregate_concepts": [{"concept": "c", "definition": "d", "covered_axial_codes": ["trust"]}]}`},
		{domain.StageStoryline, `{"storyline": "text", "anchors": [{"concept": "c", "axial_codes": ["trust"]}]}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			_, doc, err := ExtractJSON(tt.body)
			require.NoError(t, err)
			assert.NoError(t, StageSchema(tt.stage).Validate(doc))
		})
	}
}
