package gasdb

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// withRetryBackoff runs attempt in a loop until it returns a nil error, a
// non-conflict error, or the retry budget (opts.MaxRetries, opts.Timeout) is
// exhausted, sleeping an exponentially growing, jittered delay between
// attempts — the same exponential-backoff-with-jitter shape the teacher used
// for its MongoDB transaction retry loop, generalised here to retry on
// *ConflictError instead of a driver-transient-error classification.
func withRetryBackoff(ctx context.Context, opts *EditOptions, attempt func() error) error {
	if opts == nil {
		opts = NewEditOptions()
	}

	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}

	for attemptCount := 0; ; attemptCount++ {
		err := attempt()
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}
		if opts.MaxRetries > 0 && attemptCount >= opts.MaxRetries {
			return err
		}

		sleep := delay
		if opts.RetryJitter > 0 {
			sleep += time.Duration(rand.Float64() * opts.RetryJitter * float64(delay))
		}

		select {
		case <-ctx.Done():
			return err
		case <-time.After(sleep):
		}

		delay *= 2
		if opts.MaxRetryDelay > 0 && delay > opts.MaxRetryDelay {
			delay = opts.MaxRetryDelay
		}
	}
}

func isConflict(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}
