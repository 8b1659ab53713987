package engine

import (
	"context"
	"time"
)

// RetryPolicy controls how many times a transient failure is re-attempted
// and how long to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultLoginRetry matches the portal's observed flakiness: three
// attempts with a short pause.
func DefaultLoginRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 1500 * time.Millisecond}
}

// run invokes fn up to MaxAttempts times, sleeping Backoff between
// attempts. Only transient errors are retried; a credential rejection or
// missing browser fails immediately.
func (p RetryPolicy) run(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return err
		}
		select {
		case <-time.After(p.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
