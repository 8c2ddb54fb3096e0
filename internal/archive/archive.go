// Package archive talks to the forum-post archive the research pipeline mines.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/painscout/internal/content"
)

// MaxPageSize is the largest page the archive serves per call.
const MaxPageSize = 100

// ErrTransient marks failures worth retrying (timeouts, 429, 5xx).
var ErrTransient = errors.New("transient archive error")

// Query selects one page of items from one container.
type Query struct {
	Container string
	After     time.Time // exclusive lower bound, zero = unbounded
	Before    time.Time // exclusive upper bound, zero = now
	Limit     int
}

// PageSize returns Limit clamped to [1, MaxPageSize].
func (q Query) PageSize() int {
	switch {
	case q.Limit <= 0:
		return MaxPageSize
	case q.Limit > MaxPageSize:
		return MaxPageSize
	}
	return q.Limit
}

// Source is an archive that can be searched by container and time window.
// Results are newest first.
type Source interface {
	SearchPosts(ctx context.Context, q Query) ([]content.Item, error)
	SearchComments(ctx context.Context, q Query) ([]content.Item, error)
}

// StatusError is a non-2xx response from the archive.
type StatusError struct {
	Code       int
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archive returned %d: %s", e.Code, e.Body)
}

// Unwrap classifies rate limiting and server errors as transient.
func (e *StatusError) Unwrap() error {
	if e.Code == 429 || e.Code >= 500 {
		return ErrTransient
	}
	return nil
}

// RetryAfter returns the server-requested wait, if any.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}
