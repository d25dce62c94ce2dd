package domain

import "strings"

// Code is a fine-grained open code with the records that evidence it.
// Codes are deduplicated by label across records; IDs are sequential in
// first-seen order so later stages can reference them compactly.
type Code struct {
	// ID is the sequential identifier assigned when codes are merged.
	ID int `json:"id"`

	// Label is the code text.
	Label string `json:"label"`

	// Span is a supporting quote from the first record that produced the code.
	Span string `json:"span,omitempty"`

	// RecordIDs are the evidence anchors: every record this code was
	// derived from. A code with no anchors is invalid.
	RecordIDs []string `json:"record_ids"`
}

// Category is an axial grouping of open codes.
type Category struct {
	// Label is the axial code text.
	Label string `json:"label"`

	// MemberCodeIDs are the open codes grouped under this category.
	MemberCodeIDs []int `json:"member_code_ids"`

	// RecordIDs are the evidence anchors, the union of the member codes'
	// anchors.
	RecordIDs []string `json:"record_ids"`
}

// MemberLabels returns the labels of the member codes, resolved against
// the given code table. Unknown IDs are skipped.
func (c *Category) MemberLabels(codes []Code) []string {
	byID := make(map[int]string, len(codes))
	for _, code := range codes {
		byID[code.ID] = code.Label
	}
	labels := make([]string, 0, len(c.MemberCodeIDs))
	for _, id := range c.MemberCodeIDs {
		if label, ok := byID[id]; ok {
			labels = append(labels, label)
		}
	}
	return labels
}

// Concept is a selective-coding aggregate that covers one or more axial
// categories.
type Concept struct {
	// Label names the aggregate concept.
	Label string `json:"label"`

	// Definition is the model's one-line definition of the concept.
	Definition string `json:"definition,omitempty"`

	// CoveredCategories are the axial category labels grouped under this
	// concept. Each category belongs to exactly one concept.
	CoveredCategories []string `json:"covered_categories"`

	// RecordIDs are the evidence anchors inherited from the covered
	// categories.
	RecordIDs []string `json:"record_ids"`
}

// Anchor ties one passage of the storyline back to the records that
// justify it.
type Anchor struct {
	// Concept is the aggregate concept the passage draws on.
	Concept string `json:"concept"`

	// Categories are the axial categories cited for the passage.
	Categories []string `json:"categories"`

	// RecordIDs are the resolved source records.
	RecordIDs []string `json:"record_ids"`
}

// Storyline is the terminal artifact: the narrative synthesis plus its
// evidence anchors. Written once, never mutated afterwards.
type Storyline struct {
	// Narrative is the storyline text.
	Narrative string `json:"narrative"`

	// CoreCategory is the unifying category selected during selective
	// coding.
	CoreCategory string `json:"core_category"`

	// Anchors tie the narrative back to source records.
	Anchors []Anchor `json:"anchors"`
}

// AnchoredRecordIDs returns the distinct record IDs referenced by the
// storyline's anchors, in first-seen order.
func (s *Storyline) AnchoredRecordIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range s.Anchors {
		for _, id := range a.RecordIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// NormaliseLabel trims and collapses whitespace in a code or category
// label so that model output variants dedupe to the same entry.
func NormaliseLabel(label string) string {
	return strings.Join(strings.Fields(label), " ")
}

// UnionRecordIDs merges record ID slices preserving first-seen order and
// dropping duplicates.
func UnionRecordIDs(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
