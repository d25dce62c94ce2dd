package domain

import "fmt"

// AIProvider identifies the LLM endpoint family.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOpenAI is any OpenAI-compatible chat-completions endpoint.
	// This includes DeepSeek and other hosted services that speak the same
	// wire format; point BaseURL at the service.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic messages API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOpenAI, AIProviderAnthropic, AIProviderOllama:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOpenAI:
		return "OpenAI-compatible (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderOllama:
		return "Ollama (local)"
	default:
		return unknownDescription
	}
}

// StageModels maps each pipeline stage to the model identifier it uses.
// Stages are independently overridable because open coding tolerates a
// cheaper model while the reasoning-heavy stages usually do not.
type StageModels struct {
	OpenCoding      string `json:"open_coding"`
	Filtering       string `json:"filtering"`
	AxialCoding     string `json:"axial_coding"`
	SelectiveCoding string `json:"selective_coding"`
	Storyline       string `json:"storyline"`
}

// ForStage returns the model configured for a stage.
func (m StageModels) ForStage(stage Stage) string {
	switch stage {
	case StageOpenCoding:
		return m.OpenCoding
	case StageFiltering:
		return m.Filtering
	case StageAxialCoding:
		return m.AxialCoding
	case StageSelectiveCoding:
		return m.SelectiveCoding
	case StageStoryline:
		return m.Storyline
	default:
		return ""
	}
}

// PipelineSettings holds every knob the pipeline reads. It is built once
// at startup from the config store plus environment overrides and passed
// into the orchestrator and the LLM factory; nothing reads configuration
// ad hoc mid-pipeline.
type PipelineSettings struct {
	// Provider selects the LLM adapter.
	Provider AIProvider `json:"provider"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `json:"base_url"`

	// Models are the per-stage model identifiers.
	Models StageModels `json:"models"`

	// Concurrency is the worker width for per-record stages. 1 processes
	// records strictly in sequence.
	Concurrency int `json:"concurrency"`

	// FilterBatchSize is how many records go into one filtering call.
	FilterBatchSize int `json:"filter_batch_size"`

	// MaxAttempts bounds retries per model call.
	MaxAttempts int `json:"max_attempts"`

	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second"`

	// OutputDir is the artifact root.
	OutputDir string `json:"output_dir"`
}

// DefaultPipelineSettings returns the settings used when nothing is
// configured. The default model split mirrors common practice: a chat
// model for the per-record stage, a reasoning model for the rest.
func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		Provider: AIProviderOpenAI,
		BaseURL:  "",
		Models: StageModels{
			OpenCoding:      "deepseek-chat",
			Filtering:       "deepseek-reasoner",
			AxialCoding:     "deepseek-reasoner",
			SelectiveCoding: "deepseek-reasoner",
			Storyline:       "deepseek-reasoner",
		},
		Concurrency:       1,
		FilterBatchSize:   60,
		MaxAttempts:       3,
		RequestsPerSecond: 1.0,
		OutputDir:         "outputs",
	}
}

// Environment variable names recognised by ApplyEnv.
const (
	EnvAPIKey         = "STRATA_API_KEY"
	EnvBaseURL        = "STRATA_BASE_URL"
	EnvProvider       = "STRATA_PROVIDER"
	EnvOpenModel      = "STRATA_OPEN_MODEL"
	EnvFilterModel    = "STRATA_FILTER_MODEL"
	EnvAxialModel     = "STRATA_AXIAL_MODEL"
	EnvSelectiveModel = "STRATA_SELECTIVE_MODEL"
	EnvStorylineModel = "STRATA_STORYLINE_MODEL"
)

// ApplyEnv overlays environment variables onto the settings. The lookup
// function is injected so tests don't have to mutate the process
// environment; pass os.Getenv in production.
func (s *PipelineSettings) ApplyEnv(lookup func(string) string) {
	if v := lookup(EnvAPIKey); v != "" {
		s.APIKey = v
	}
	if v := lookup(EnvBaseURL); v != "" {
		s.BaseURL = v
	}
	if v := lookup(EnvProvider); v != "" {
		s.Provider = AIProvider(v)
	}
	if v := lookup(EnvOpenModel); v != "" {
		s.Models.OpenCoding = v
	}
	if v := lookup(EnvFilterModel); v != "" {
		s.Models.Filtering = v
	}
	if v := lookup(EnvAxialModel); v != "" {
		s.Models.AxialCoding = v
	}
	if v := lookup(EnvSelectiveModel); v != "" {
		s.Models.SelectiveCoding = v
	}
	if v := lookup(EnvStorylineModel); v != "" {
		s.Models.Storyline = v
	}
}

// Validate checks the settings are usable before any model call is made.
func (s *PipelineSettings) Validate() error {
	if !s.Provider.IsValid() {
		return fmt.Errorf("%w: unknown provider %q", ErrConfiguration, s.Provider)
	}
	if s.Provider.RequiresAPIKey() && s.APIKey == "" {
		return fmt.Errorf("%w: %s requires an API key (set %s or run 'strata settings set-key')",
			ErrConfiguration, s.Provider, EnvAPIKey)
	}
	for _, stage := range Stages() {
		if s.Models.ForStage(stage) == "" {
			return fmt.Errorf("%w: no model configured for stage %s", ErrConfiguration, stage)
		}
	}
	if s.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1", ErrConfiguration)
	}
	if s.FilterBatchSize < 1 {
		return fmt.Errorf("%w: filter batch size must be at least 1", ErrConfiguration)
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1", ErrConfiguration)
	}
	return nil
}
