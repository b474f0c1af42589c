package pipeline

import (
	"context"
	"fmt"
	"time"

	"go-etl-pipeline/internal/model"
)

// Sleeper waits between attempts. It returns early with ctx's error if ctx
// ends first.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retrier runs one stage under its RetryPolicy: a fixed delay between
// attempts, no jitter and no backoff growth. Retries are scoped to the
// failing stage.
type Retrier struct {
	sleep Sleeper
}

func NewRetrier(sleep Sleeper) *Retrier {
	if sleep == nil {
		sleep = SleepContext
	}
	return &Retrier{sleep: sleep}
}

// AttemptFunc is one numbered attempt, starting at 1.
type AttemptFunc func(ctx context.Context, attempt int) error

// Do calls fn until it succeeds, fails permanently, or the policy's attempts
// are spent. onRetry runs after each failed attempt that will be retried,
// before the wait. It returns the number of attempts made and the last error.
func (r *Retrier) Do(ctx context.Context, policy model.RetryPolicy, fn AttemptFunc, onRetry func(attempt int, err error)) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if model.IsPermanent(lastErr) || attempt == policy.MaxAttempts {
			return attempt, lastErr
		}
		if onRetry != nil {
			onRetry(attempt, lastErr)
		}
		if err := r.sleep(ctx, policy.Delay); err != nil {
			return attempt, fmt.Errorf("retry wait interrupted: %w (last error: %v)", err, lastErr)
		}
	}
	return policy.MaxAttempts, lastErr
}
