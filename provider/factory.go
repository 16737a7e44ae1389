package provider

import (
	"fmt"

	"fetchr/objectstore"
	"fetchr/tools"

	"go.uber.org/zap"
)

type options struct {
	registry *tools.Registry
	fetcher  objectstore.Fetcher
	logger   *zap.SugaredLogger
}

// Option configures a provider built by NewProvider or a constructor.
type Option func(*options)

// WithRegistry sets the registry tool calls are decoded against. The default
// registry is used otherwise.
func WithRegistry(r *tools.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithFetcher sets the collaborator that resolves remote image URLs for
// backends that need inline bytes.
func WithFetcher(f objectstore.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithLogger sets the logger adapters report coerced content to.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = tools.Default()
	}
	if o.fetcher == nil {
		o.fetcher = objectstore.NewHTTPFetcher(nil)
	}
	if o.logger == nil {
		o.logger = zap.NewNop().Sugar()
	}
	return o
}

// NewProvider creates a provider based on configuration.
//
// When cfg.RequestsPerMinute is positive the provider is wrapped with
// WithRateLimit.
func NewProvider(cfg Config, opts ...Option) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Type {
	case ProviderTypeOllama:
		p, err = NewOllamaProvider(cfg, opts...)
	case ProviderTypeOpenAI:
		p, err = NewOpenAIProvider(cfg, opts...)
	case ProviderTypeGroq:
		p, err = NewGroqProvider(cfg, opts...)
	case ProviderTypeAnthropic:
		p, err = NewAnthropicProvider(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerMinute > 0 {
		p = WithRateLimit(p, cfg.RequestsPerMinute)
	}
	return p, nil
}

// MapProviderIDToType converts a config provider ID to a ProviderType.
// Unknown IDs are passed through and rejected by NewProvider.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic", "claude":
		return ProviderTypeAnthropic
	case "groq":
		return ProviderTypeGroq
	default:
		return ProviderType(id)
	}
}
