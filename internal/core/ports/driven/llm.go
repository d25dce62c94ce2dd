package driven

import "context"

// LLMService is the single outbound call primitive the pipeline uses.
// One implementation exists per provider; the retry decorator wraps any
// of them with backoff and pacing, so stage code never retries itself.
//
// Implementations map transport failures onto the domain error taxonomy:
// domain.ErrRateLimited, domain.ErrNetwork, domain.ErrTimeout and
// domain.ErrConfiguration, all wrapped so errors.Is works.
type LLMService interface {
	// Chat submits a conversation and returns the assistant's reply text.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// ModelName returns the model identifier this service calls.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test
	// request. Used at startup so a bad key or model id aborts the
	// pipeline before any stage call.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ChatOptions configures chat behaviour.
type ChatOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness. The pipeline always uses 0 for
	// reproducible coding.
	Temperature float64
}
