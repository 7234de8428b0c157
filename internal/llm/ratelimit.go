package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures request rate limiting for an embedder.
type RateLimitConfig struct {
	// RequestsPerMinute limits the number of API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// BurstSize allows temporary bursts above the rate.
	BurstSize int
}

// DefaultRateLimitConfig returns conservative limits for hosted embedding APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 300,
		BurstSize:         5,
	}
}

// RateLimitEmbedder delays calls so the inner embedder is not hit faster
// than the configured rate.
type RateLimitEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimitEmbedder creates a rate-limited embedder wrapper.
func NewRateLimitEmbedder(inner Embedder, config *RateLimitConfig) *RateLimitEmbedder {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := max(config.BurstSize, 1)
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(config.RequestsPerMinute) / 60)
	}
	return &RateLimitEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Name returns the underlying provider name.
func (r *RateLimitEmbedder) Name() string {
	return r.inner.Name()
}

// Embed waits for capacity and delegates to the inner embedder.
func (r *RateLimitEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

// WithRateLimit wraps an embedder with rate limiting.
func WithRateLimit(e Embedder, config *RateLimitConfig) Embedder {
	if e == nil {
		return nil
	}
	return NewRateLimitEmbedder(e, config)
}
