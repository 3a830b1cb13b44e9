// Package agent is the facade over the dispatch core: one constructed
// instance per process, handed to the HTTP front-end and the scheduler.
package agent

import (
	"context"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	"github.com/seawingai/ai-marketing-agent/internal/eventbus"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// Event types emitted on the bus by the generation side. The publish side's
// events are emitted by the fan-out itself (see dispatch.EventTargetSuccess
// and friends).
const (
	EventGenerateComplete = "generate.complete"
	EventGenerateFailure  = "generate.failure"
)

// GenerateEvent is the bus payload for generation outcomes.
type GenerateEvent struct {
	Provider string        `json:"provider,omitempty"`
	Model    string        `json:"model,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	Error    string        `json:"error,omitempty"`
}

// Options wires one Agent. Registry is required; the generation side is
// optional (an agent can be publish-only when no LLM is configured).
type Options struct {
	Primary   dispatch.Generator
	Secondary dispatch.Generator

	// LLMTimeout bounds each generation attempt; LLMRetry tunes the
	// per-provider backoff loop; OuterRetries adds the extra loop around
	// the whole primary+fallback sequence (0 disables it).
	LLMTimeout   time.Duration
	LLMRetry     dispatch.RetryOptions
	OuterRetries int

	Registry *dispatch.Registry
	Bus      eventbus.Bus
	Log      logx.Logger
}

type Agent struct {
	log logx.Logger
	bus eventbus.Bus

	coord        *dispatch.FallbackCoordinator
	outerRetries int

	reg *dispatch.Registry
	fan *dispatch.FanOut
}

func New(opt Options) *Agent {
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	a := &Agent{
		log:          log,
		bus:          opt.Bus,
		outerRetries: opt.OuterRetries,
		reg:          opt.Registry,
		fan:          dispatch.NewFanOut(opt.Registry, opt.Bus, log),
	}

	if opt.Primary != nil {
		exec := dispatch.NewExecutor(log, opt.LLMTimeout, 0)
		primary := dispatch.NewGeneratorClient(opt.Primary, exec, opt.LLMRetry)
		var secondary *dispatch.GeneratorClient
		if opt.Secondary != nil {
			secondary = dispatch.NewGeneratorClient(opt.Secondary, dispatch.NewExecutor(log, opt.LLMTimeout, 0), opt.LLMRetry)
		}
		a.coord = dispatch.NewFallbackCoordinator(primary, secondary, log)
	}
	return a
}

// Generate asks the configured LLM backend(s) for text. The request runs
// through per-provider retry, fallback, and (when configured) the outer
// resilience loop.
func (a *Agent) Generate(ctx context.Context, req dispatch.GenerationRequest) (*dispatch.GenerationResult, error) {
	if a.coord == nil {
		return nil, dispatch.ErrNoProvider
	}

	start := time.Now()
	var res *dispatch.GenerationResult
	var err error
	if a.outerRetries > 0 {
		res, err = a.coord.AskWithRetry(ctx, req, a.outerRetries)
	} else {
		res, err = a.coord.Ask(ctx, req)
	}

	if err != nil {
		a.emit(eventbus.Event{Type: EventGenerateFailure, Data: GenerateEvent{
			Elapsed: time.Since(start),
			Error:   err.Error(),
		}})
		return nil, err
	}

	a.emit(eventbus.Event{Type: EventGenerateComplete, Data: GenerateEvent{
		Model:   res.Model,
		Elapsed: time.Since(start),
	}})
	return res, nil
}

// Publish fans the payload out to every registered target.
// Per-target failures are folded into the result, never returned as errors.
func (a *Agent) Publish(ctx context.Context, payload dispatch.PublishPayload) (*dispatch.FanOutResult, error) {
	return a.fan.Publish(ctx, payload)
}

// PublishToTarget dispatches to one named target only.
func (a *Agent) PublishToTarget(ctx context.Context, name string, payload dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	return a.fan.PublishTo(ctx, name, payload)
}

// Validate runs the shared payload checks plus every registered target's own
// hook and reports the complete violation set.
func (a *Agent) Validate(payload dispatch.PublishPayload) dispatch.ValidationResult {
	return a.reg.Validate(payload)
}

func (a *Agent) RegisterTarget(name string, cfg dispatch.TargetConfig) error {
	return a.reg.Add(name, cfg)
}

func (a *Agent) UnregisterTarget(name string) bool {
	return a.reg.Remove(name)
}

func (a *Agent) ListTargets() []string { return a.reg.Names() }

func (a *Agent) ListAvailableTargetKinds() []string { return a.reg.Kinds() }

// Events exposes the bus so consumers (metrics, history) can subscribe
// without the agent knowing who is listening.
func (a *Agent) Events() eventbus.Bus { return a.bus }

func (a *Agent) emit(e eventbus.Event) {
	if a.bus != nil {
		a.bus.Publish(e)
	}
}
