package dispatch

import (
	"context"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// GeneratorClient binds one generation adapter to its retry-wrapped executor.
type GeneratorClient struct {
	gen   Generator
	retry *RetryPolicy
}

func NewGeneratorClient(gen Generator, exec *Executor, opt RetryOptions) *GeneratorClient {
	return &GeneratorClient{gen: gen, retry: NewRetryPolicy(exec, opt)}
}

func (c *GeneratorClient) Name() string { return c.gen.Name() }

// Generate runs the adapter through its retry policy and reports attempts made.
func (c *GeneratorClient) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, int, error) {
	var res *GenerationResult
	attempts, err := c.retry.Run(ctx, c.gen.Name(), func(ctx context.Context) error {
		r, err := c.gen.Generate(ctx, req)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return res, attempts, nil
}

// FallbackCoordinator runs generation against a primary provider and, when the
// primary's retry budget is exhausted on a transient failure, rescues the
// request once through an optional secondary provider.
//
// Contract: when both providers fail, the PRIMARY's error is surfaced. The
// fallback is best-effort rescue, not a replacement of the failure narrative.
// A terminal primary failure never reaches the secondary.
type FallbackCoordinator struct {
	primary   *GeneratorClient
	secondary *GeneratorClient
	log       logx.Logger

	// outer loop backoff for AskWithRetry
	outer RetryOptions
}

func NewFallbackCoordinator(primary, secondary *GeneratorClient, log logx.Logger) *FallbackCoordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FallbackCoordinator{primary: primary, secondary: secondary, log: log, outer: RetryOptions{}.withDefaults()}
}

// Ask dispatches one generation request through primary-then-fallback.
func (f *FallbackCoordinator) Ask(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if f.primary == nil {
		return nil, ErrNoProvider
	}

	res, attempts, primaryErr := f.primary.Generate(ctx, req)
	if primaryErr == nil {
		return res, nil
	}
	if !IsRetryable(primaryErr) || f.secondary == nil {
		return nil, primaryErr
	}

	f.log.Warn("generation falling back to secondary provider",
		logx.String("primary", f.primary.Name()),
		logx.String("secondary", f.secondary.Name()),
		logx.Int("primary_attempts", attempts),
		logx.Err(primaryErr))

	res, _, secondaryErr := f.secondary.Generate(ctx, req)
	if secondaryErr == nil {
		return res, nil
	}

	f.log.Warn("secondary provider also failed",
		logx.String("secondary", f.secondary.Name()),
		logx.Err(secondaryErr))
	return nil, primaryErr
}

// AskWithRetry wraps the whole primary+fallback sequence in one more
// exponential-backoff loop, for callers needing extra resilience across both
// providers combined. maxRetries <= 0 behaves like a single Ask.
func (f *FallbackCoordinator) AskWithRetry(ctx context.Context, req GenerationRequest, maxRetries int) (*GenerationResult, error) {
	opt := f.outer
	opt.MaxAttempts = maxRetries
	if maxRetries <= 0 {
		opt.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opt.MaxAttempts; attempt++ {
		res, err := f.Ask(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt >= opt.MaxAttempts {
			break
		}
		if serr := sleepBackoff(ctx, BackoffDelay(opt.BaseDelay, opt.MaxDelay, attempt)); serr != nil {
			break
		}
	}
	return nil, lastErr
}
