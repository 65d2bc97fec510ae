// Package retry provides a bounded retry policy with exponential backoff.
// It is handed to collaborator adapters (the extractor client wraps its HTTP
// calls in it) and stays out of the reconciliation decision logic.
package retry

import (
	"context"
	"time"
)

// Policy bounds how often an operation is retried. Zero-valued fields fall
// back to the defaults below.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 2 * time.Second
)

func (p Policy) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}

func (p Policy) initialDelay() time.Duration {
	if p.InitialDelay > 0 {
		return p.InitialDelay
	}
	return defaultInitialDelay
}

// Do runs fn until it succeeds, the attempts are exhausted, or the context is
// done. The delay doubles after each failed attempt. The last error is
// returned unwrapped so callers can inspect it.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	delay := p.initialDelay()
	attempts := p.maxAttempts()

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
