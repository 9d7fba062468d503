package rerank

import (
	"context"
	"time"
)

// RetryPolicy retries a provider call on transient errors only. Schema
// violations fail immediately; the per-call deadline bounds total time spent
// regardless of attempts.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Backoff is the delay before the first retry; it doubles per attempt.
	// Tens of milliseconds keeps retries cheap against the rerank budget.
	Backoff time.Duration
}

// DefaultRetryPolicy retries once after 25ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, Backoff: 25 * time.Millisecond}
}

// Do runs submit up to 1+MaxRetries times.
func (p RetryPolicy) Do(ctx context.Context, submit func(ctx context.Context) (*Response, error)) (*Response, int, error) {
	backoff := p.Backoff
	attempts := 0

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, attempts, lastErr
			}
			return nil, attempts, err
		}

		attempts++
		resp, err := submit(ctx)
		if err == nil {
			return resp, attempts, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, attempts, err
		}
		if attempt == p.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, attempts, lastErr
		}
		backoff *= 2
	}

	return nil, attempts, lastErr
}
