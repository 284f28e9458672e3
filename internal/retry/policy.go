// Package retry holds the single retry policy applied to every outbound call
// (embedding batches, source fetches, LLM requests).
package retry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes how an operation is retried
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseBackoff time.Duration // wait before the second attempt
	Multiplier  float64       // growth factor between waits
	MaxBackoff  time.Duration // upper bound for a single wait
	// Retryable reports whether err deserves another attempt.
	// Nil means every error is retryable.
	Retryable func(err error) bool
	// OnRetry is called before each wait (optional)
	OnRetry func(err error, wait time.Duration)
}

// Default returns the policy used when nothing else is configured:
// 3 attempts, 1s base, doubling.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		Multiplier:  2,
		MaxBackoff:  30 * time.Second,
	}
}

// WithAttempts returns a copy of p with a different attempt budget
func (p Policy) WithAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// Delayer is implemented by errors that carry a server-requested wait,
// typically an HTTP Retry-After header. The wait replaces the computed
// backoff for that attempt, capped at MaxBackoff.
type Delayer interface {
	RetryAfter() time.Duration
}

// ParseRetryAfter reads a Retry-After header value (delay seconds or an
// HTTP date). Anything unparseable or in the past is 0.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is exhausted, or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	operation := func() (T, error) {
		res, err := op(ctx)
		last = err
		if err == nil {
			return res, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		var d Delayer
		if errors.As(err, &d) && d.RetryAfter() > 0 {
			wait := d.RetryAfter()
			if p.MaxBackoff > 0 && wait > p.MaxBackoff {
				wait = p.MaxBackoff
			}
			return res, errors.Join(err, &backoff.RetryAfterError{Duration: wait})
		}
		return res, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(p.OnRetry))
	}

	res, err := backoff.Retry(ctx, operation, opts...)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return res, perm.Err
		}
		var ra *backoff.RetryAfterError
		if errors.As(err, &ra) && last != nil {
			return res, last
		}
	}
	return res, err
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.MaxInterval = p.MaxBackoff
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval * 32
	}
	// deterministic doubling
	b.RandomizationFactor = 0
	b.Reset()
	return b
}
