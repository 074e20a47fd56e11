package middleware

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"goa.design/ensemble/model"
)

type (
	// RetryOptions configures the retry middleware. The zero value retries
	// rate-limited calls up to three times with exponential backoff
	// starting at one second.
	RetryOptions struct {
		// MaxAttempts is the total number of attempts including the first
		// call. Values below 1 default to 3.
		MaxAttempts int
		// InitialDelay is the wait before the first retry. Defaults to 1s;
		// the delay doubles on each subsequent retry.
		InitialDelay time.Duration
		// MaxDelay caps the per-retry wait. Defaults to 30s.
		MaxDelay time.Duration
		// RetryOn reports whether the error is retryable. Defaults to
		// model.ErrRateLimited only.
		RetryOn func(error) bool
	}

	retryClient struct {
		next model.Client
		opts RetryOptions
	}
)

// Retry returns a model.Client middleware that retries retryable failures
// with exponential backoff and jitter. Wrap the provider client inside
// the rate limiter so retried attempts also pay the token budget.
func Retry(opts RetryOptions) func(model.Client) model.Client {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.RetryOn == nil {
		opts.RetryOn = func(err error) bool { return errors.Is(err, model.ErrRateLimited) }
	}
	return func(next model.Client) model.Client {
		if next == nil {
			return nil
		}
		return &retryClient{next: next, opts: opts}
	}
}

// GenerateJSON delegates to the underlying client, retrying retryable
// errors until the attempt budget or the context runs out.
func (c *retryClient) GenerateJSON(ctx context.Context, req model.Request) (*model.Result, error) {
	delay := c.opts.InitialDelay
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, jitter(delay)); err != nil {
				return nil, err
			}
			delay *= 2
			if delay > c.opts.MaxDelay {
				delay = c.opts.MaxDelay
			}
		}
		res, err := c.next.GenerateJSON(ctx, req)
		if err == nil {
			return res, nil
		}
		if !c.opts.RetryOn(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// jitter spreads the delay over [delay/2, delay) so synchronized callers
// do not retry in lockstep.
func jitter(delay time.Duration) time.Duration {
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
