package domain

const unknownDescription = "Unknown"

// Stage identifies one step of the coding pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	// StageOpenCoding produces fine-grained codes from raw answers.
	StageOpenCoding Stage = "open_coding"

	// StageFiltering marks records as relevant or excluded.
	StageFiltering Stage = "filtering"

	// StageAxialCoding groups retained codes into categories.
	StageAxialCoding Stage = "axial_coding"

	// StageSelectiveCoding selects a core category and aggregate concepts.
	StageSelectiveCoding Stage = "selective_coding"

	// StageStoryline writes the final narrative with evidence anchors.
	StageStoryline Stage = "storyline"
)

// Stages returns all pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageOpenCoding,
		StageFiltering,
		StageAxialCoding,
		StageSelectiveCoding,
		StageStoryline,
	}
}

// IsValid returns true if the stage is recognised.
func (s Stage) IsValid() bool {
	switch s {
	case StageOpenCoding, StageFiltering, StageAxialCoding, StageSelectiveCoding, StageStoryline:
		return true
	default:
		return false
	}
}

// Ordinal returns the zero-based position of the stage in the pipeline,
// or -1 for an unknown stage.
func (s Stage) Ordinal() int {
	for i, stage := range Stages() {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows this one, or an empty Stage when
// this is the terminal stage.
func (s Stage) Next() Stage {
	stages := Stages()
	i := s.Ordinal()
	if i < 0 || i+1 >= len(stages) {
		return ""
	}
	return stages[i+1]
}

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

// Description returns a human-readable description of the stage.
func (s Stage) Description() string {
	switch s {
	case StageOpenCoding:
		return "Open Coding (raw text to codes)"
	case StageFiltering:
		return "Filtering (relevance screening)"
	case StageAxialCoding:
		return "Axial Coding (codes to categories)"
	case StageSelectiveCoding:
		return "Selective Coding (core category)"
	case StageStoryline:
		return "Storyline (narrative synthesis)"
	default:
		return unknownDescription
	}
}
