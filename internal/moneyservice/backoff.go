package moneyservice

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// maxRetryInterval caps a single wait between optimistic attempts.
const maxRetryInterval = time.Second

// retryPolicy returns the backoff between optimistic attempts of one operation.
//
// Waits grow exponentially from the base delay with full jitter. The policy
// stops after maxAttempts-1 retries or when ctx is done.
func retryPolicy(ctx context.Context, baseDelay time.Duration, maxAttempts int) backoff.BackOffContext {
	var policy backoff.BackOff = &backoff.StopBackOff{}

	if maxAttempts > 1 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = baseDelay
		b.RandomizationFactor = 1
		b.Multiplier = 2
		b.MaxInterval = maxRetryInterval
		b.MaxElapsedTime = 0
		b.Reset()

		policy = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	}

	return backoff.WithContext(policy, ctx)
}
