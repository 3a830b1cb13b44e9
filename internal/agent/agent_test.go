package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	"github.com/seawingai/ai-marketing-agent/internal/eventbus"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

type stubGenerator struct {
	name string
	res  *dispatch.GenerationResult
	err  error
}

func (s *stubGenerator) Name() string { return s.name }

func (s *stubGenerator) Generate(context.Context, dispatch.GenerationRequest) (*dispatch.GenerationResult, error) {
	return s.res, s.err
}

type stubPublisher struct{}

func (stubPublisher) Kind() string { return "stub" }

func (stubPublisher) Publish(context.Context, dispatch.PublishPayload) (*dispatch.PublishOutcome, error) {
	return &dispatch.PublishOutcome{Success: true, PostID: "p1"}, nil
}

func (stubPublisher) CheckPayload(dispatch.PublishPayload) []string { return nil }

type stubFactory struct{}

func (stubFactory) Build(string, dispatch.TargetConfig, logx.Logger) (dispatch.Publisher, error) {
	return stubPublisher{}, nil
}

func (stubFactory) Kinds() []string { return []string{"stub"} }

func newTestAgent(primary dispatch.Generator) (*Agent, eventbus.Bus) {
	bus := eventbus.New()
	reg := dispatch.NewRegistry(stubFactory{}, map[string]dispatch.TargetConfig{
		"main": {Kind: "stub"},
	}, logx.Nop())
	return New(Options{
		Primary:    primary,
		LLMTimeout: 5 * time.Second,
		LLMRetry:   dispatch.RetryOptions{MaxAttempts: 1, BaseDelay: time.Millisecond},
		Registry:   reg,
		Bus:        bus,
		Log:        logx.Nop(),
	}), bus
}

func collectEvents(ch <-chan eventbus.Event, n int, timeout time.Duration) []eventbus.Event {
	var out []eventbus.Event
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestGenerateEmitsCompleteEvent(t *testing.T) {
	t.Parallel()
	ag, bus := newTestAgent(&stubGenerator{name: "stub", res: &dispatch.GenerationResult{Text: "hi", Model: "m1"}})
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	res, err := ag.Generate(context.Background(), dispatch.GenerationRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Text != "hi" {
		t.Fatalf("result = %+v", res)
	}

	evs := collectEvents(ch, 1, time.Second)
	if len(evs) != 1 || evs[0].Type != EventGenerateComplete {
		t.Fatalf("events = %+v", evs)
	}
	ge, ok := evs[0].Data.(GenerateEvent)
	if !ok || ge.Model != "m1" || ge.Error != "" {
		t.Fatalf("event payload = %+v", evs[0].Data)
	}
}

func TestGenerateEmitsFailureEvent(t *testing.T) {
	t.Parallel()
	ag, bus := newTestAgent(&stubGenerator{
		name: "stub",
		err:  dispatch.NewError(dispatch.KindAuth, "stub", "bad key"),
	})
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	if _, err := ag.Generate(context.Background(), dispatch.GenerationRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}

	evs := collectEvents(ch, 1, time.Second)
	if len(evs) != 1 || evs[0].Type != EventGenerateFailure {
		t.Fatalf("events = %+v", evs)
	}
	ge := evs[0].Data.(GenerateEvent)
	if ge.Error == "" {
		t.Fatalf("failure event must carry the error: %+v", ge)
	}
}

func TestGenerateWithoutProvider(t *testing.T) {
	t.Parallel()
	ag, _ := newTestAgent(nil)
	if _, err := ag.Generate(context.Background(), dispatch.GenerationRequest{Prompt: "p"}); !errors.Is(err, dispatch.ErrNoProvider) {
		t.Fatalf("err = %v, want ErrNoProvider", err)
	}
}

func TestPublishAndTargetManagement(t *testing.T) {
	t.Parallel()
	ag, _ := newTestAgent(nil)
	ctx := context.Background()

	res, err := ag.Publish(ctx, dispatch.PublishPayload{Content: "hello"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !res.Success || len(res.Succeeded) != 1 {
		t.Fatalf("result = %+v", res)
	}

	out, err := ag.PublishToTarget(ctx, "main", dispatch.PublishPayload{Content: "hello"})
	if err != nil || !out.Success {
		t.Fatalf("publish to target: out=%+v err=%v", out, err)
	}
	if _, err := ag.PublishToTarget(ctx, "ghost", dispatch.PublishPayload{Content: "hello"}); !errors.Is(err, dispatch.ErrTargetNotFound) {
		t.Fatalf("unknown target err = %v", err)
	}

	if err := ag.RegisterTarget("second", dispatch.TargetConfig{Kind: "stub"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := ag.ListTargets(); len(got) != 2 {
		t.Fatalf("targets = %v", got)
	}
	if !ag.UnregisterTarget("second") {
		t.Fatal("unregister must report removal")
	}
	if ag.UnregisterTarget("second") {
		t.Fatal("second unregister must report missing")
	}

	if v := ag.Validate(dispatch.PublishPayload{}); v.Valid {
		t.Fatalf("empty payload must be invalid: %+v", v)
	}
}
