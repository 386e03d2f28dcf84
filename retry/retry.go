// Package retry runs idempotent collaborator calls with a bounded exponential backoff
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines how many times and how fast a call is retried
type Policy struct {
	// Attempts is the total number of attempts, including the first one. Values lower than 1 mean 1
	Attempts int

	// Initial is the wait before the first retry, doubled on every following retry
	Initial time.Duration

	// Max caps the wait between two attempts
	Max time.Duration
}

// DefaultPolicy returns a policy with the given number of attempts and sensible waits for chat and http calls
func DefaultPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, Initial: 250 * time.Millisecond, Max: 2 * time.Second}
}

// None is a policy making a single attempt
var None = Policy{Attempts: 1}

// Operation is a retriable call
type Operation func(ctx context.Context) error

// Permanent wraps an error to stop retries. Do returns the wrapped error unchanged
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are exhausted or ctx is done.
// The error of the last attempt is returned
func Do(ctx context.Context, p Policy, op Operation) (err error) {
	if p.Attempts <= 1 {
		err = op(ctx)
		if perr, ok := err.(*backoff.PermanentError); ok {
			return perr.Err
		}

		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	eb.MaxInterval = p.Max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)

	return backoff.Retry(func() error {
		return op(ctx)
	}, b)
}
