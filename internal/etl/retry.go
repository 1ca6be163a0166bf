package etl

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Retry invokes fn until it succeeds or maxRetries additional attempts have
// been exhausted, sleeping between attempts with exponential backoff capped
// at maxDelay.
//
// No retry is built into the job runner itself; Retry is the reusable
// wrapper the orchestrator applies around an entire job invocation.
func Retry(ctx context.Context, maxRetries int, baseDelay, maxDelay time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == maxRetries {
			break
		}

		wait := min(baseDelay<<attempt, maxDelay)
		slog.WarnContext(ctx, "retrying after failure",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"wait", wait,
			"error", lastErr,
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", context.Cause(ctx))
		}
	}

	return fmt.Errorf("all %d retries exhausted: %w", maxRetries, lastErr)
}
