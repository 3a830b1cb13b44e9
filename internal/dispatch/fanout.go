package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/eventbus"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// Event types emitted on the bus by the fan-out publisher.
const (
	EventTargetSuccess  = "publish.target_success"
	EventTargetFailure  = "publish.target_failure"
	EventFanOutComplete = "publish.fanout_complete"
)

// TargetEvent is the bus payload for per-target outcomes.
type TargetEvent struct {
	Target   string         `json:"target"`
	Attempts int            `json:"attempts"`
	Outcome  PublishOutcome `json:"outcome"`
	Error    string         `json:"error,omitempty"`
}

// FanOutEvent is the bus payload for whole fan-out completions.
type FanOutEvent struct {
	Result  FanOutResult  `json:"result"`
	Elapsed time.Duration `json:"elapsed"`
}

// FanOut dispatches one payload to every registered target concurrently.
//
// Outcomes are isolated: one target's failure (or panic, or exhausted retry
// budget) never aborts or delays the others, and every target contributes
// exactly one PublishOutcome to the aggregate.
type FanOut struct {
	reg *Registry
	bus eventbus.Bus
	log logx.Logger
}

func NewFanOut(reg *Registry, bus eventbus.Bus, log logx.Logger) *FanOut {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &FanOut{reg: reg, bus: bus, log: log}
}

// Publish validates the payload against the shared checks, then fans it out
// to a snapshot of the current registry membership. The returned error is
// non-nil only for payloads failing the shared checks; a target whose own
// CheckPayload hook rejects the payload becomes that target's failed outcome
// without blocking the others.
func (f *FanOut) Publish(ctx context.Context, payload PublishPayload) (*FanOutResult, error) {
	if errs := CheckPayload(payload); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(errs, ", "))
	}

	targets := f.reg.snapshot()
	start := time.Now()

	type slot struct {
		outcome  PublishOutcome
		attempts int
	}
	slots := make([]slot, len(targets))

	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t *target) {
			defer wg.Done()
			outcome, attempts := f.dispatchOne(ctx, t, payload)
			slots[i] = slot{outcome: outcome, attempts: attempts}
			f.emitOutcome(t.name, outcome, attempts)
		}(i, t)
	}
	wg.Wait()

	res := &FanOutResult{
		Outcomes:    make(map[string]PublishOutcome, len(targets)),
		Errors:      map[string]string{},
		Succeeded:   []string{},
		Failed:      []string{},
		CompletedAt: time.Now(),
	}
	for i, t := range targets {
		s := slots[i]
		res.Outcomes[t.name] = s.outcome
		res.TotalAttempts += s.attempts
		if s.outcome.Success {
			res.Succeeded = append(res.Succeeded, t.name)
		} else {
			res.Failed = append(res.Failed, t.name)
			res.Errors[t.name] = s.outcome.Error
		}
	}
	res.Success = len(res.Succeeded) > 0

	elapsed := time.Since(start)
	f.log.Info("fanout complete",
		logx.Int("targets", len(targets)),
		logx.Int("succeeded", len(res.Succeeded)),
		logx.Int("failed", len(res.Failed)),
		logx.Int("attempts", res.TotalAttempts),
		logx.Duration("elapsed", elapsed))
	if f.bus != nil {
		f.bus.Publish(eventbus.Event{Type: EventFanOutComplete, Data: FanOutEvent{Result: *res, Elapsed: elapsed}})
	}
	return res, nil
}

// PublishTo bypasses fan-out and dispatches to a single named target.
func (f *FanOut) PublishTo(ctx context.Context, name string, payload PublishPayload) (*PublishOutcome, error) {
	t := f.reg.get(name)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, name)
	}

	errs := CheckPayload(payload)
	for _, code := range t.pub.CheckPayload(payload) {
		errs = append(errs, name+": "+code)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(errs, ", "))
	}

	outcome, attempts := f.dispatchOne(ctx, t, payload)
	f.emitOutcome(name, outcome, attempts)
	return &outcome, nil
}

// dispatchOne runs one target's retry-wrapped publish and always produces an
// outcome; errors are converted, never propagated. A payload vetoed by the
// target's own hook fails without a dispatch attempt.
func (f *FanOut) dispatchOne(ctx context.Context, t *target, payload PublishPayload) (PublishOutcome, int) {
	if codes := t.pub.CheckPayload(payload); len(codes) > 0 {
		return PublishOutcome{
			Success:     false,
			Error:       strings.Join(codes, ", "),
			Target:      t.name,
			CompletedAt: time.Now(),
		}, 0
	}

	var outcome *PublishOutcome
	attempts, err := t.retry.Run(ctx, t.name, func(ctx context.Context) error {
		o, err := t.pub.Publish(ctx, payload)
		if err != nil {
			return err
		}
		outcome = o
		return nil
	})
	if err != nil {
		return PublishOutcome{
			Success:     false,
			Error:       err.Error(),
			Target:      t.name,
			CompletedAt: time.Now(),
		}, attempts
	}

	o := *outcome
	o.Success = true
	o.Target = t.name
	if o.CompletedAt.IsZero() {
		o.CompletedAt = time.Now()
	}
	return o, attempts
}

func (f *FanOut) emitOutcome(name string, outcome PublishOutcome, attempts int) {
	if f.bus == nil {
		return
	}
	ev := TargetEvent{Target: name, Attempts: attempts, Outcome: outcome, Error: outcome.Error}
	if outcome.Success {
		f.bus.Publish(eventbus.Event{Type: EventTargetSuccess, Data: ev})
	} else {
		f.bus.Publish(eventbus.Event{Type: EventTargetFailure, Data: ev})
	}
}
