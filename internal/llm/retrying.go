package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/TobiSchelling/painscout/internal/retry"
)

// Retrying wraps a provider with bounded exponential backoff on transient failures.
type Retrying struct {
	Provider
	Policy retry.Policy
}

// WithRetry wraps p. A nil provider stays nil.
func WithRetry(p Provider, policy retry.Policy) Provider {
	if p == nil {
		return nil
	}
	policy.Retryable = Transient
	return &Retrying{Provider: p, Policy: policy}
}

// Generate retries the wrapped provider until it succeeds or the policy gives up.
func (r *Retrying) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var out string
	err := retry.Do(ctx, r.Policy, "llm generate", func(ctx context.Context) error {
		var err error
		out, err = r.Provider.Generate(ctx, prompt, maxTokens)
		return err
	})
	return out, err
}

// Transient reports whether err is worth retrying: rate limits, server errors
// and network failures are; missing credentials and client errors are not.
func Transient(err error) bool {
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return ae.StatusCode == http.StatusTooManyRequests || ae.StatusCode >= 500
	}
	return true
}
