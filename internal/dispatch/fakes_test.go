package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// fakePublisher replays a scripted sequence of errors, then succeeds.
// A nil entry means success on that call.
type fakePublisher struct {
	kind   string
	script []error
	delay  time.Duration
	checks []string

	mu    sync.Mutex
	calls int
}

func (p *fakePublisher) Kind() string { return p.kind }

func (p *fakePublisher) Publish(ctx context.Context, payload PublishPayload) (*PublishOutcome, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}
	if idx < len(p.script) && p.script[idx] != nil {
		return nil, p.script[idx]
	}
	return &PublishOutcome{PostID: fmt.Sprintf("%s-post-%d", p.kind, idx+1), URL: "https://example.invalid/post"}, nil
}

func (p *fakePublisher) CheckPayload(payload PublishPayload) []string { return p.checks }

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// panicPublisher panics on every publish, to prove outcome isolation.
type panicPublisher struct{}

func (panicPublisher) Kind() string { return "panic" }
func (panicPublisher) Publish(ctx context.Context, payload PublishPayload) (*PublishOutcome, error) {
	panic("adapter bug")
}
func (panicPublisher) CheckPayload(payload PublishPayload) []string { return nil }

// fakeFactory hands out pre-built publishers keyed by target name and fails
// for unknown kinds, mirroring real factory behavior.
type fakeFactory struct {
	pubs map[string]Publisher
}

func (f *fakeFactory) Build(name string, cfg TargetConfig, _ logx.Logger) (Publisher, error) {
	if cfg.Kind == "bogus" {
		return nil, errors.New("unknown adapter kind: bogus")
	}
	if p, ok := f.pubs[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no fake publisher for %q", name)
}

func (f *fakeFactory) Kinds() []string { return []string{"facebook", "twitter", "telegram"} }

// newTestRegistry registers the given publishers under fast retry options.
func newTestRegistry(pubs map[string]Publisher, maxAttempts int) *Registry {
	fac := &fakeFactory{pubs: pubs}
	cfgs := map[string]TargetConfig{}
	for name := range pubs {
		cfgs[name] = TargetConfig{Kind: "fake", Retry: fastRetry(maxAttempts)}
	}
	return NewRegistry(fac, cfgs, logx.Nop())
}

// fakeGenerator replays scripted errors then returns text.
type fakeGenerator struct {
	name   string
	script []error

	mu    sync.Mutex
	calls int
}

func (g *fakeGenerator) Name() string { return g.name }

func (g *fakeGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	g.mu.Lock()
	idx := g.calls
	g.calls++
	g.mu.Unlock()

	if idx < len(g.script) && g.script[idx] != nil {
		return nil, g.script[idx]
	}
	return &GenerationResult{Text: g.name + " says: " + req.Prompt, Model: req.Model}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func serverErr(provider string) error { return NewError(KindServer, provider, "boom 500") }
func authErr(provider string) error   { return NewError(KindAuth, provider, "bad token") }
func clientErr(provider string) error { return NewError(KindClient, provider, "bad request") }

// repeat builds a script of n copies of err.
func repeat(err error, n int) []error {
	s := make([]error, n)
	for i := range s {
		s[i] = err
	}
	return s
}

var errPlain = errors.New("plain failure")

// fastRetry keeps test backoffs in the microsecond range.
func fastRetry(maxAttempts int) RetryOptions {
	return RetryOptions{MaxAttempts: maxAttempts, BaseDelay: 50 * time.Microsecond, MaxDelay: time.Millisecond}
}
