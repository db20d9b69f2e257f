package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/bibgest/internal/pathstore"
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *pathstore.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * backoffUnit
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base)/2 + 1))
	return base + jitter
}

const MaxRetries = 3

var backoffUnit = time.Second

// withRetry runs op until it succeeds, fails permanently or runs out of attempts.
func withRetry(ctx context.Context, op func() error, onRetry func(attempt int, err error)) error {
	var lastErr error
	for attempt := range MaxRetries {
		lastErr = op()
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == MaxRetries-1 {
			break
		}
		if onRetry != nil {
			onRetry(attempt, lastErr)
		}
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
