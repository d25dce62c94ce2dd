package services

import (
	"context"
	"sync"

	"github.com/strata-qda/strata-cli/internal/core/ports/driven"
)

// mockLLM scripts model replies for tests.
type mockLLM struct {
	model   string
	handler func(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *mockLLM) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.handler(ctx, messages, opts)
}

func (m *mockLLM) ModelName() string {
	if m.model == "" {
		return "mock-model"
	}
	return m.model
}

func (m *mockLLM) Ping(ctx context.Context) error { return nil }
func (m *mockLLM) Close() error                   { return nil }

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// stubPrompts is a fixed-text prompt store.
type stubPrompts struct{}

func (stubPrompts) Load(name string) (string, error) { return "You are a coding assistant.", nil }
func (stubPrompts) Version(name string) string       { return "test" }
