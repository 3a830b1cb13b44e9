package dispatch

import (
	"context"
	"time"
)

// RetryOptions tunes the exponential backoff loop.
type RetryOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 1000 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 10 * time.Second
	}
	return o
}

// RetryPolicy wraps an Executor in a bounded exponential-backoff loop.
//
// This is the only place delay math lives. Attempt 1 runs immediately; a
// retryable failure sleeps min(base * 2^(attempt-1), cap) before the next
// attempt. Terminal failures and exhausted budgets surface the last error
// verbatim.
type RetryPolicy struct {
	opt  RetryOptions
	exec *Executor
}

func NewRetryPolicy(exec *Executor, opt RetryOptions) *RetryPolicy {
	return &RetryPolicy{opt: opt.withDefaults(), exec: exec}
}

// Options returns the effective (defaulted) options.
func (p *RetryPolicy) Options() RetryOptions { return p.opt }

// Run executes call through the executor until it succeeds, fails terminally,
// or the attempt budget is exhausted. It reports how many attempts were made.
func (p *RetryPolicy) Run(ctx context.Context, provider string, call func(ctx context.Context) error) (attempts int, err error) {
	for attempt := 1; attempt <= p.opt.MaxAttempts; attempt++ {
		attempts = attempt
		err = p.exec.Do(ctx, provider, attempt, call)
		if err == nil {
			return attempts, nil
		}
		if !IsRetryable(err) || attempt >= p.opt.MaxAttempts {
			return attempts, err
		}
		if serr := sleepBackoff(ctx, BackoffDelay(p.opt.BaseDelay, p.opt.MaxDelay, attempt)); serr != nil {
			// Caller went away mid-backoff; the last dispatch error is still
			// the more useful one to surface.
			return attempts, err
		}
	}
	return attempts, err
}

// BackoffDelay computes min(base * 2^(attempt-1), cap).
func BackoffDelay(base, cap time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

func sleepBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	tmr := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
