package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormaliseLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"trust in platform", "trust in platform"},
		{"  trust   in\tplatform ", "trust in platform"},
		{"\n", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormaliseLabel(tt.in))
	}
}

func TestUnionRecordIDs(t *testing.T) {
	got := UnionRecordIDs(
		[]string{"a", "b"},
		[]string{"b", "c"},
		nil,
		[]string{"a", "d"},
	)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestCategory_MemberLabels(t *testing.T) {
	codes := []Code{
		{ID: 1, Label: "fear of change"},
		{ID: 2, Label: "peer pressure"},
	}
	cat := Category{Label: "adoption barriers", MemberCodeIDs: []int{2, 1, 7}}

	// Unknown ID 7 is skipped.
	assert.Equal(t, []string{"peer pressure", "fear of change"}, cat.MemberLabels(codes))
}

func TestStoryline_AnchoredRecordIDs(t *testing.T) {
	s := Storyline{
		Narrative:    "narrative",
		CoreCategory: "core",
		Anchors: []Anchor{
			{Concept: "c1", RecordIDs: []string{"r1", "r2"}},
			{Concept: "c2", RecordIDs: []string{"r2", "r3"}},
		},
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, s.AnchoredRecordIDs())
}
