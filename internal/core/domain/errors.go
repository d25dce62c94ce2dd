package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRunInProgress indicates a pipeline run is already active.
	ErrRunInProgress = errors.New("run in progress")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// The pipeline cannot run without a reachable model endpoint.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// Invocation errors. These classify a single model call so the retry
	// layer and the stage processor can decide what to do with it.

	// ErrConfiguration indicates a missing API key, an unknown model
	// identifier, or an otherwise rejected request. Never retried; aborts
	// the pipeline before or during the first call that hits it.
	ErrConfiguration = errors.New("configuration error")

	// ErrRateLimited indicates the endpoint returned HTTP 429.
	// Retried with backoff up to the attempt budget.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetwork indicates a transport failure or a 5xx response.
	// Retried with backoff up to the attempt budget.
	ErrNetwork = errors.New("network error")

	// ErrTimeout indicates a per-invocation deadline expired.
	// Retried with backoff up to the attempt budget.
	ErrTimeout = errors.New("request timed out")

	// ErrMalformedResponse indicates the model replied but the reply could
	// not be parsed against the stage's output schema. Content-level
	// failure: never retried, recorded per record with the raw response.
	ErrMalformedResponse = errors.New("malformed model response")

	// ErrStageExhausted indicates every record in a stage failed.
	// Fatal for the pipeline.
	ErrStageExhausted = errors.New("all records in stage failed")

	// ErrStageOrder indicates a stage received input that skipped an
	// earlier stage (e.g. axial coding on records that were never open
	// coded).
	ErrStageOrder = errors.New("stage received out-of-order input")
)

// IsRetryable reports whether an invocation error should be retried.
// Content-level and configuration failures are final; transport-level
// failures are worth another attempt.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrMalformedResponse):
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrNetwork), errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}
