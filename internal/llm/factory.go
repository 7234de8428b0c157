package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds all configuration needed to create an embedder.
type ProviderConfig struct {
	Provider string // "openai", "ollama", "together", "custom", or "none"
	APIKey   string
	Model    string
	BaseURL  string // Override for self-hosted / custom endpoints

	// Timeout and retry configuration
	Timeout    time.Duration // Per-request timeout (default: 30 seconds)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 500ms)

	RequestsPerMinute int // 0 = unlimited
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// ProviderFactory creates Embedder instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds an Embedder from config.
type ProviderConstructor func(cfg ProviderConfig) (Embedder, error)

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds an Embedder from config. Returns nil (no error) when provider
// is empty or "none", allowing embedding-free operation.
// The returned embedder is wrapped with retry and rate limiting when configured.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Embedder, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", cfg.Provider, f.names())
	}

	e, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		e = WrapWithRetry(e, cfg)
	}
	if cfg.RequestsPerMinute > 0 {
		e = WithRateLimit(e, &RateLimitConfig{RequestsPerMinute: cfg.RequestsPerMinute, BurstSize: 1})
	}
	return e, nil
}

func (f *ProviderFactory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// WrapWithRetry wraps an embedder with retry logic from config.
func WrapWithRetry(e Embedder, cfg ProviderConfig) Embedder {
	if e == nil {
		return nil
	}

	defaults := DefaultRetryConfig()
	config := &RetryConfig{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		MaxDelay:   defaults.MaxDelay,
		Timeout:    cfg.Timeout,
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	return NewRetryEmbedder(e, config)
}

// KnownProviders lists OpenAI-compatible embedding endpoints by preset name.
var KnownProviders = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"ollama":      "http://localhost:11434/v1",
	"together":    "https://api.together.xyz/v1",
	"huggingface": "https://api-inference.huggingface.co/v1",
}
