// Package provider converts chat logs into each model backend's wire format
// and calls the backends.
//
// Every backend is reached through the Provider interface. A Provider takes the
// canonical turns of a chat log plus the tool schemas the agent exposes and
// returns one canonical assistant turn, so the agent loop never sees an SDK
// type.
//
// # Adapters
//
// The adapters are pure functions, one pair per backend:
//   - ToOpenAI / FromOpenAIMessage (openai-go)
//   - ToGroq / FromGroqMessage (go-openai against Groq's OpenAI compatible API)
//   - ToAnthropic / FromAnthropicMessage (anthropic-sdk-go)
//   - ToOllama / FromOllamaMessage (ollama api)
//
// Each To function normalizes its input first, so callers may pass a raw log.
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:   provider.ProviderTypeAnthropic,
//	    APIKey: key,
//	}, provider.WithFetcher(store))
//	if err != nil {
//	    return err
//	}
//	turn, err := p.Complete(ctx, provider.Request{Turns: turns, Tools: schemas})
package provider

import (
	"context"
	"errors"
	"fmt"

	"fetchr/content"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ErrUnsupportedContent is returned by an adapter when a turn carries content
// the backend cannot represent.
var ErrUnsupportedContent = errors.New("content not supported by provider")

// Provider calls one model backend.
type Provider interface {
	// Kind names the wire format tool payloads are rendered for.
	Kind() content.Provider
	// Complete sends the conversation and returns the model's reply as a
	// single assistant turn.
	Complete(ctx context.Context, req Request) (content.Turn, error)
}

// Request is one model call.
type Request struct {
	Turns []content.Turn
	Tools []mcptypes.Tool
}

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama    ProviderType = "ollama"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeGroq      ProviderType = "groq"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
	// MaxTokens bounds the reply; zero means the backend default.
	MaxTokens int64
	// RequestsPerMinute enables client side rate limiting when positive.
	RequestsPerMinute int
}

// ProviderError reports a failed model call. StatusCode is the HTTP status
// when the backend answered, zero otherwise.
type ProviderError struct {
	Provider   ProviderType
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
