package driven

// Prompt names identify the system prompts the pipeline loads.
// Each stage has exactly one.
const (
	PromptOpenCoding      = "open_coding"
	PromptFiltering       = "filtering"
	PromptAxialCoding     = "axial_coding"
	PromptSelectiveCoding = "selective_coding"
	PromptStoryline       = "storyline"
)

// PromptStore provides stage system prompts.
// Implementations load user-editable files with embedded defaults, so
// researchers can tune the coding instructions without rebuilding.
type PromptStore interface {
	// Load returns the prompt text for the given name.
	Load(name string) (string, error)

	// Version returns an identifier for the prompt revision in use
	// (e.g. "default" or a content hash), recorded in stage metadata.
	Version(name string) string
}
