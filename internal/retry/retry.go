// Package retry runs external calls with a small, bounded number of
// attempts. Only errors classified as domain.ErrTransient are retried.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/log"
)

// Policy bounds local retries.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultPolicy is three attempts with a short backoff.
var DefaultPolicy = Policy{
	Attempts: 3,
	Delay:    200 * time.Millisecond,
	MaxDelay: 2 * time.Second,
}

// Do calls fn until it succeeds, returns a non-transient error, the
// attempts run out or ctx is done. The returned error is the last one fn
// produced, unwrapped from retry-go's aggregate.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	logger := log.FromContext(ctx)

	return retry.Do(fn,
		retry.Attempts(attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, domain.ErrTransient)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("retrying external call", "op", op, "attempt", n+1, "err", err)
		}),
		retry.Context(ctx),
	)
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, p Policy, op string, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
