package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDelayDoubles(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Duration(0), p.Delay(1))
	assert.Equal(t, time.Second, p.Delay(2))
	assert.Equal(t, 2*time.Second, p.Delay(3))
	assert.Equal(t, 4*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(5), "capped at MaxDelay")
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUpLoudly(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, "archive", func(context.Context) error {
		calls++
		return errFlaky
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errFlaky) },
	}
	err := Do(context.Background(), p, "test", func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

type waitErr struct{ d time.Duration }

func (e waitErr) Error() string              { return "slow down" }
func (e waitErr) RetryAfter() time.Duration { return e.d }

func TestDoHonoursContextDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}, "test", func(context.Context) error {
		return waitErr{d: time.Hour}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDoWaitsAsLongAsRetryAfterAsks(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Do(context.Background(), Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}, "test", func(context.Context) error {
		calls++
		if calls == 1 {
			return waitErr{d: 30 * time.Millisecond}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDoSingleAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, "test", func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "giving up after 1 attempts")
	assert.Equal(t, 1, calls)
}
