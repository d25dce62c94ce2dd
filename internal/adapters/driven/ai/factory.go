// Package ai provides factory functions for creating LLM service
// adapters from pipeline settings.
package ai

import (
	"context"
	"fmt"
	"time"

	anthropicllm "github.com/strata-qda/strata-cli/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/strata-qda/strata-cli/internal/adapters/driven/llm/ollama"
	openaillm "github.com/strata-qda/strata-cli/internal/adapters/driven/llm/openai"
	"github.com/strata-qda/strata-cli/internal/adapters/driven/llm/retry"
	"github.com/strata-qda/strata-cli/internal/core/domain"
	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
	"github.com/strata-qda/strata-cli/internal/core/services"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// requestTimeout bounds a single HTTP round trip. The effective per-call
// deadline is the stage's context timeout; this is a backstop above the
// longest stage deadline so the transport never cuts a stage call short.
const requestTimeout = 10 * time.Minute

// NewStageServices creates one validated, retry-wrapped LLM service per
// pipeline stage. Stages configured with the same model share a service.
// Callers own the returned services and must Close them.
func NewStageServices(settings domain.PipelineSettings) (services.StageServices, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	byModel := make(map[string]driven.LLMService)
	out := make(services.StageServices, len(domain.Stages()))

	for _, stage := range domain.Stages() {
		model := settings.Models.ForStage(stage)
		svc, ok := byModel[model]
		if !ok {
			created, err := CreateAndValidateLLMService(settings, model)
			if err != nil {
				CloseStageServices(out)
				return nil, err
			}
			svc = retry.Wrap(created, retry.Config{
				MaxAttempts:       settings.MaxAttempts,
				RequestsPerSecond: settings.RequestsPerSecond,
			})
			byModel[model] = svc
		}
		out[stage] = svc
	}
	return out, nil
}

// CloseStageServices closes every distinct service in the map.
func CloseStageServices(svcs services.StageServices) {
	closed := make(map[driven.LLMService]struct{})
	for _, svc := range svcs {
		if svc == nil {
			continue
		}
		if _, done := closed[svc]; done {
			continue
		}
		closed[svc] = struct{}{}
		svc.Close()
	}
}

// CreateAndValidateLLMService creates an LLM service for one model and
// validates connectivity. Returns the service if successful, or an error
// with guidance.
func CreateAndValidateLLMService(settings domain.PipelineSettings, model string) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'strata settings set-key' to fix",
			domain.ErrLLMUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Check provider settings with 'strata settings show'",
			domain.ErrLLMUnavailable, err)
	}
	return svc, nil
}

// ValidateConfig validates provider settings by creating a service for
// the open-coding model and pinging it. Used by the settings command so
// bad credentials surface at configuration time.
func ValidateConfig(settings domain.PipelineSettings) error {
	svc, err := CreateLLMService(settings, settings.Models.ForStage(domain.StageOpenCoding))
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return svc.Ping(ctx)
}

// CreateLLMService creates the appropriate LLM service based on settings.
func CreateLLMService(settings domain.PipelineSettings, model string) (driven.LLMService, error) {
	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.Config{
			BaseURL: settings.BaseURL,
			Model:   model,
			Timeout: requestTimeout,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   model,
			Timeout: requestTimeout,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   model,
			Timeout: requestTimeout,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", domain.ErrConfiguration, settings.Provider)
	}
}
