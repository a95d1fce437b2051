package services

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds an exponential backoff retry.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// Defaults used when the matching Concierge field is left zero.
var (
	DefaultStoreRetry    = RetryPolicy{Attempts: 4, Initial: 100 * time.Millisecond, Max: 2 * time.Second}
	DefaultSendRetry     = RetryPolicy{Attempts: 3, Initial: 500 * time.Millisecond, Max: 5 * time.Second}
	DefaultGenerateRetry = RetryPolicy{Attempts: 3, Initial: time.Second, Max: 10 * time.Second}
)

func (p RetryPolicy) orDefault(def RetryPolicy) RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Initial <= 0 {
		p.Initial = def.Initial
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	return p
}

// Retry runs fn until it succeeds, returns a backoff.Permanent error, the
// policy's attempts are used up, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.Retry(ctx, fn,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn().Err(err).Str("op", op).Dur("wait", wait).Msg("retrying")
		}),
	)
}

func retryErr(ctx context.Context, p RetryPolicy, op string, fn func() error) error {
	_, err := Retry(ctx, p, op, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}
