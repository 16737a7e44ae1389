package testutil

import (
	"context"
	"errors"
	"sync"

	"fetchr/content"
	"fetchr/provider"
)

// ErrScriptExhausted is returned by a scripted mock called more often than it
// has replies.
var ErrScriptExhausted = errors.New("mock provider has no more replies")

// MockProvider implements provider.Provider for testing.
type MockProvider struct {
	// Configurable responses
	CompleteFunc func(ctx context.Context, req provider.Request) (content.Turn, error)
	KindValue    content.Provider

	mu       sync.Mutex
	requests []provider.Request
}

// NewMockProvider creates a mock that answers every call with a fixed
// assistant text.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{KindValue: content.ProviderOpenAI}
	mock.CompleteFunc = mock.defaultComplete
	return mock
}

// NewScriptedProvider creates a mock that returns replies in order and fails
// with ErrScriptExhausted afterwards.
func NewScriptedProvider(replies ...content.Turn) *MockProvider {
	mock := NewMockProvider()
	var next int
	mock.CompleteFunc = func(ctx context.Context, req provider.Request) (content.Turn, error) {
		mock.mu.Lock()
		defer mock.mu.Unlock()
		if next >= len(replies) {
			return content.Turn{}, ErrScriptExhausted
		}
		reply := replies[next]
		next++
		return reply, nil
	}
	return mock
}

func (m *MockProvider) defaultComplete(ctx context.Context, req provider.Request) (content.Turn, error) {
	return content.TextTurn(content.RoleAssistant, "Mock response"), nil
}

func (m *MockProvider) Kind() content.Provider {
	return m.KindValue
}

// Complete records req and delegates to CompleteFunc.
func (m *MockProvider) Complete(ctx context.Context, req provider.Request) (content.Turn, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.CompleteFunc(ctx, req)
}

// Requests returns every request received so far.
func (m *MockProvider) Requests() []provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.Request(nil), m.requests...)
}

// Calls returns the number of Complete calls.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
