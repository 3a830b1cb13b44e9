package dispatch

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/eventbus"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

func TestFanOutMixedOutcomes(t *testing.T) {
	t.Parallel()
	// A succeeds, B fails terminally, C fails once then succeeds on retry.
	a := &fakePublisher{kind: "a"}
	b := &fakePublisher{kind: "b", script: repeat(clientErr("b"), 5)}
	c := &fakePublisher{kind: "c", script: []error{serverErr("c")}}
	reg := newTestRegistry(map[string]Publisher{"a": a, "b": b, "c": c}, 3)
	f := NewFanOut(reg, nil, logx.Nop())

	res, err := f.Publish(context.Background(), payloadWithContentLen(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("overall success must be true when at least one target succeeded")
	}
	if want := []string{"a", "c"}; !reflect.DeepEqual(res.Succeeded, want) {
		t.Fatalf("Succeeded = %v, want %v", res.Succeeded, want)
	}
	if want := []string{"b"}; !reflect.DeepEqual(res.Failed, want) {
		t.Fatalf("Failed = %v, want %v", res.Failed, want)
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("outcome map has %d entries, want 3", len(res.Outcomes))
	}
	// a:1 + b:1 (terminal, no retry) + c:2 (fail then success)
	if res.TotalAttempts != 4 {
		t.Fatalf("TotalAttempts = %d, want 4", res.TotalAttempts)
	}
	if res.Errors["b"] == "" {
		t.Fatal("failed target should carry an error message")
	}
	if b.callCount() != 1 {
		t.Fatalf("terminal target was retried: %d calls", b.callCount())
	}
}

func TestFanOutAllTargetsFail(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(map[string]Publisher{
		"x": &fakePublisher{kind: "x", script: repeat(serverErr("x"), 5)},
		"y": &fakePublisher{kind: "y", script: repeat(authErr("y"), 5)},
	}, 2)
	f := NewFanOut(reg, nil, logx.Nop())

	res, err := f.Publish(context.Background(), payloadWithContentLen(20))
	if err != nil {
		t.Fatalf("fan-out must not fail as a whole: %v", err)
	}
	if res.Success {
		t.Fatal("Success must be false when every target failed")
	}
	if want := []string{"x", "y"}; !reflect.DeepEqual(res.Failed, want) {
		t.Fatalf("Failed = %v, want %v", res.Failed, want)
	}
	if len(res.Succeeded) != 0 {
		t.Fatalf("Succeeded = %v, want empty", res.Succeeded)
	}
}

func TestFanOutIsolatesPanickingTarget(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(map[string]Publisher{
		"ok":     &fakePublisher{kind: "ok"},
		"broken": panicPublisher{},
	}, 2)
	f := NewFanOut(reg, nil, logx.Nop())

	res, err := f.Publish(context.Background(), payloadWithContentLen(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("every target needs an outcome, got %d", len(res.Outcomes))
	}
	if res.Outcomes["broken"].Success {
		t.Fatal("panicking target should be recorded as failed")
	}
	if !res.Outcomes["ok"].Success {
		t.Fatal("healthy target should be unaffected")
	}
}

func TestFanOutRunsConcurrently(t *testing.T) {
	t.Parallel()
	const perTarget = 60 * time.Millisecond
	pubs := map[string]Publisher{}
	for _, name := range []string{"n1", "n2", "n3", "n4"} {
		pubs[name] = &fakePublisher{kind: name, delay: perTarget}
	}
	reg := newTestRegistry(pubs, 1)
	f := NewFanOut(reg, nil, logx.Nop())

	start := time.Now()
	res, err := f.Publish(context.Background(), payloadWithContentLen(20))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	// Bounded by the slowest target, not the sum (4 * 60ms = 240ms).
	if elapsed > 3*perTarget {
		t.Fatalf("fan-out took %v; targets appear to run sequentially", elapsed)
	}
}

func TestFanOutTargetVetoDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	// A target whose hook vetoes the payload (a video-only network given a
	// text post) fails alone; the healthy target still publishes.
	picky := &fakePublisher{kind: "picky", checks: []string{"video_required"}}
	healthy := &fakePublisher{kind: "healthy"}
	reg := newTestRegistry(map[string]Publisher{"picky": picky, "healthy": healthy}, 2)
	f := NewFanOut(reg, nil, logx.Nop())

	res, err := f.Publish(context.Background(), payloadWithContentLen(20))
	if err != nil {
		t.Fatalf("per-target veto must not fail the fan-out: %v", err)
	}
	if !res.Success {
		t.Fatal("overall success must be true: the healthy target succeeded")
	}
	if want := []string{"healthy"}; !reflect.DeepEqual(res.Succeeded, want) {
		t.Fatalf("Succeeded = %v, want %v", res.Succeeded, want)
	}
	if want := []string{"picky"}; !reflect.DeepEqual(res.Failed, want) {
		t.Fatalf("Failed = %v, want %v", res.Failed, want)
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("outcome map has %d entries, want 2", len(res.Outcomes))
	}
	if res.Errors["picky"] != "video_required" {
		t.Fatalf("vetoed target error = %q, want the violation code", res.Errors["picky"])
	}
	if picky.callCount() != 0 {
		t.Fatalf("vetoed target was dispatched %d times, want 0", picky.callCount())
	}
	if healthy.callCount() != 1 {
		t.Fatalf("healthy target calls = %d, want 1", healthy.callCount())
	}
}

func TestFanOutAllTargetsVetoed(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(map[string]Publisher{
		"v1": &fakePublisher{kind: "v1", checks: []string{"video_required"}},
		"v2": &fakePublisher{kind: "v2", checks: []string{"media_required"}},
	}, 1)
	f := NewFanOut(reg, nil, logx.Nop())

	res, err := f.Publish(context.Background(), payloadWithContentLen(20))
	if err != nil {
		t.Fatalf("fan-out must not fail as a whole: %v", err)
	}
	if res.Success || len(res.Failed) != 2 {
		t.Fatalf("result = %+v, want both targets failed", res)
	}
	if res.TotalAttempts != 0 {
		t.Fatalf("TotalAttempts = %d, want 0 (no dispatches)", res.TotalAttempts)
	}
}

func TestFanOutInvalidPayload(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(map[string]Publisher{"a": &fakePublisher{kind: "a"}}, 1)
	f := NewFanOut(reg, nil, logx.Nop())

	_, err := f.Publish(context.Background(), PublishPayload{})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestFanOutEmitsEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	reg := newTestRegistry(map[string]Publisher{
		"good": &fakePublisher{kind: "good"},
		"bad":  &fakePublisher{kind: "bad", script: repeat(clientErr("bad"), 5)},
	}, 1)
	f := NewFanOut(reg, bus, logx.Nop())

	if _, err := f.Publish(context.Background(), payloadWithContentLen(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counts := map[string]int{}
	timeout := time.After(time.Second)
	for len(counts) < 3 {
		select {
		case ev := <-ch:
			counts[ev.Type]++
		case <-timeout:
			t.Fatalf("missing events, saw %v", counts)
		}
	}
	if counts[EventTargetSuccess] != 1 || counts[EventTargetFailure] != 1 || counts[EventFanOutComplete] != 1 {
		t.Fatalf("event counts = %v", counts)
	}
}

func TestPublishToSingleTarget(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(map[string]Publisher{"a": &fakePublisher{kind: "a"}}, 1)
	f := NewFanOut(reg, nil, logx.Nop())

	out, err := f.PublishTo(context.Background(), "a", payloadWithContentLen(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Success || out.Target != "a" || out.PostID == "" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestPublishToUnknownTarget(t *testing.T) {
	t.Parallel()
	reg := newTestRegistry(map[string]Publisher{}, 1)
	f := NewFanOut(reg, nil, logx.Nop())

	_, err := f.PublishTo(context.Background(), "ghost", payloadWithContentLen(20))
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("err = %v, want ErrTargetNotFound", err)
	}
}

func TestFanOutSnapshotUnaffectedByConcurrentMutation(t *testing.T) {
	t.Parallel()
	slow := &fakePublisher{kind: "slow", delay: 40 * time.Millisecond}
	pubs := map[string]Publisher{"slow": slow}
	fac := &fakeFactory{pubs: pubs}
	reg := NewRegistry(fac, map[string]TargetConfig{"slow": {Kind: "fake", Retry: fastRetry(1)}}, logx.Nop())
	f := NewFanOut(reg, nil, logx.Nop())

	done := make(chan *FanOutResult, 1)
	go func() {
		res, _ := f.Publish(context.Background(), payloadWithContentLen(20))
		done <- res
	}()

	// Mutate the registry while the fan-out is in flight.
	time.Sleep(5 * time.Millisecond)
	fac.pubs["late"] = &fakePublisher{kind: "late"}
	if err := reg.Add("late", TargetConfig{Kind: "fake", Retry: fastRetry(1)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	reg.Remove("slow")

	res := <-done
	if len(res.Outcomes) != 1 {
		t.Fatalf("outcomes = %v, want only the snapshot member", res.Outcomes)
	}
	if _, ok := res.Outcomes["slow"]; !ok {
		t.Fatal("snapshot member missing from result")
	}
}
