// Package retry runs upstream calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how patiently a call is retried.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt; doubles each time
	MaxDelay    time.Duration // cap for a single delay, 0 = uncapped

	// Retryable decides whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
}

// DefaultPolicy is three attempts starting at two seconds.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

// RetryAfter is implemented by errors that carry a server-requested wait.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// uncapped stands in for MaxDelay 0; ExponentialBackOff always needs a ceiling.
const uncapped = 24 * time.Hour

// backOff returns the unjittered doubling schedule described by p.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(p.BaseDelay, 0)
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = uncapped
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Delay returns the wait before attempt number attempt (1-based, attempt >= 2).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 2 || p.BaseDelay <= 0 {
		return 0
	}
	b := p.backOff()
	var d time.Duration
	for i := 0; i < attempt-1; i++ {
		d = b.NextBackOff()
	}
	return d
}

// honourRetryAfter stretches a scheduled wait to what the last error asked for.
type honourRetryAfter struct {
	backoff.BackOff
	last *error
}

func (b honourRetryAfter) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	var ra RetryAfter
	if errors.As(*b.last, &ra) && ra.RetryAfter() > next {
		next = ra.RetryAfter()
	}
	return next
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempts run out.
// The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, name string, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var last error
	permanent := false
	op := func() error {
		last = fn(ctx)
		if last != nil && p.Retryable != nil && !p.Retryable(last) {
			permanent = true
			return backoff.Permanent(last)
		}
		return last
	}

	failures := 0
	notify := func(err error, wait time.Duration) {
		failures++
		log.Printf("%s failed (attempt %d/%d): %v; retrying in %s", name, failures, attempts, err, wait)
	}

	b := backoff.WithContext(honourRetryAfter{
		BackOff: backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)),
		last:    &last,
	}, ctx)

	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case permanent:
		return err
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempts, err)
}
