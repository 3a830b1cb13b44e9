package dispatch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// Executor runs exactly one adapter call: deadline, optional per-target rate
// limit, panic containment, error classification, and one structured log
// record per attempt. Backoff never lives here.
type Executor struct {
	log     logx.Logger
	timeout time.Duration
	limiter *rate.Limiter
}

// NewExecutor builds an executor for one provider.
// timeout 0 disables the per-call deadline; ratePerSec 0 disables limiting.
func NewExecutor(log logx.Logger, timeout time.Duration, ratePerSec int) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	var lim *rate.Limiter
	if ratePerSec > 0 {
		// Burst = rate per sec, so short spikes don't block too hard.
		lim = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &Executor{log: log, timeout: timeout, limiter: lim}
}

// Do invokes call once and returns nil or a classified *Error.
//
// The deadline bounds the in-flight call; on expiry the call is abandoned and
// the failure classifies as a retryable network error.
func (e *Executor) Do(ctx context.Context, provider string, attempt int, call func(ctx context.Context) error) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return Classify(provider, err)
		}
	}

	start := time.Now()

	callCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
	}

	var err error
	// Contain adapter panics: one bad wire translation must not take down a
	// whole fan-out.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = call(callCtx)
	}()
	if cancel != nil {
		cancel()
	}

	elapsed := time.Since(start)
	if err != nil {
		de := Classify(provider, err)
		e.log.Warn("dispatch.attempt",
			logx.String("provider", provider),
			logx.Int("attempt", attempt),
			logx.String("outcome", "error"),
			logx.String("kind", string(de.Kind)),
			logx.Bool("retryable", de.Retryable()),
			logx.Duration("elapsed", elapsed),
			logx.Err(de))
		return de
	}

	e.log.Debug("dispatch.attempt",
		logx.String("provider", provider),
		logx.Int("attempt", attempt),
		logx.String("outcome", "ok"),
		logx.Duration("elapsed", elapsed))
	return nil
}
