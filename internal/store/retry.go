package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/errs"
)

// withRetry retries fn up to 3 attempts with bounded exponential backoff
// (100ms, 400ms, capped 2s) on transient failures. Non-transient errors
// (classified by classify) are returned immediately without retrying —
// per spec.md §4.1 "Failure".
func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	delay := 100 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = classify(err)
		if errors.Is(lastErr, errs.ErrStoreRejected) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 4
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
	}
	return lastErr
}

// classify maps a raw driver/sql error to the transient/non-transient
// taxonomy the rest of the pipeline reasons about.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "locked"), strings.Contains(msg, "busy"), strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	case strings.Contains(msg, "constraint"), strings.Contains(msg, "no such table"), strings.Contains(msg, "syntax"):
		return fmt.Errorf("%w: %v", errs.ErrStoreRejected, err)
	default:
		return fmt.Errorf("%w: %v", errs.ErrStoreUnavailable, err)
	}
}
