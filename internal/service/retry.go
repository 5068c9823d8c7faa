package service

import (
	"context"
	"time"

	"github.com/quernlabs/quern/internal/apperrors"
	"github.com/quernlabs/quern/internal/logger"
)

// RetryWithBackoff retries an operation with exponential backoff. Only
// transient errors are retried; any other error kind returns immediately.
// maxAttempts: maximum number of attempts (values < 1 are treated as 1)
// baseDelay: base delay between retries (doubles on each retry)
// Returns the error from the last attempt if all attempts fail.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				logger.CtxDebug(ctx, "operation succeeded after retry: attempt=%d", attempt)
			}
			return nil
		}

		if !apperrors.IsRetryable(lastErr) {
			return lastErr
		}

		logger.CtxDebug(ctx, "operation failed, will retry: attempt=%d/%d, error=%v", attempt, maxAttempts, lastErr)

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		// Exponential backoff: baseDelay * 2^(attempt-1)
		delay := baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
