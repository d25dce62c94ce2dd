package file

import (
	"os"

	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// Config keys for pipeline settings.
const (
	KeyProvider          = "llm.provider"
	KeyAPIKey            = "llm.api_key"
	KeyBaseURL           = "llm.base_url"
	KeyOpenModel         = "models.open_coding"
	KeyFilterModel       = "models.filtering"
	KeyAxialModel        = "models.axial_coding"
	KeySelectiveModel    = "models.selective_coding"
	KeyStorylineModel    = "models.storyline"
	KeyConcurrency       = "pipeline.concurrency"
	KeyFilterBatchSize   = "pipeline.filter_batch_size"
	KeyMaxAttempts       = "pipeline.max_attempts"
	KeyRequestsPerSecond = "pipeline.requests_per_second"
	KeyOutputDir         = "output.dir"
)

// LoadPipelineSettings builds the pipeline settings from the config
// store, then overlays environment variables. Unset keys keep their
// defaults.
func LoadPipelineSettings(store driven.ConfigStore) domain.PipelineSettings {
	settings := domain.DefaultPipelineSettings()

	if v := store.GetString(KeyProvider); v != "" {
		settings.Provider = domain.AIProvider(v)
	}
	if v := store.GetString(KeyAPIKey); v != "" {
		settings.APIKey = v
	}
	if v := store.GetString(KeyBaseURL); v != "" {
		settings.BaseURL = v
	}
	if v := store.GetString(KeyOpenModel); v != "" {
		settings.Models.OpenCoding = v
	}
	if v := store.GetString(KeyFilterModel); v != "" {
		settings.Models.Filtering = v
	}
	if v := store.GetString(KeyAxialModel); v != "" {
		settings.Models.AxialCoding = v
	}
	if v := store.GetString(KeySelectiveModel); v != "" {
		settings.Models.SelectiveCoding = v
	}
	if v := store.GetString(KeyStorylineModel); v != "" {
		settings.Models.Storyline = v
	}
	if v := store.GetInt(KeyConcurrency); v > 0 {
		settings.Concurrency = v
	}
	if v := store.GetInt(KeyFilterBatchSize); v > 0 {
		settings.FilterBatchSize = v
	}
	if v := store.GetInt(KeyMaxAttempts); v > 0 {
		settings.MaxAttempts = v
	}
	if v := store.GetFloat(KeyRequestsPerSecond); v > 0 {
		settings.RequestsPerSecond = v
	}
	if v := store.GetString(KeyOutputDir); v != "" {
		settings.OutputDir = v
	}

	settings.ApplyEnv(os.Getenv)
	return settings
}
