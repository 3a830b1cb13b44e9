package dispatch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

// TargetConfig carries everything needed to construct and run one publish
// target. Credentials are opaque key/value pairs owned by the adapter.
type TargetConfig struct {
	Kind        string
	Credentials map[string]string
	Timeout     time.Duration
	RatePerSec  int
	Retry       RetryOptions
}

// AdapterFactory constructs publish adapters by kind.
//
// The provider packages implement this; the registry stays free of wire-level
// knowledge.
type AdapterFactory interface {
	Build(name string, cfg TargetConfig, log logx.Logger) (Publisher, error)
	// Kinds enumerates every adapter kind the factory can construct,
	// regardless of what is currently configured.
	Kinds() []string
}

// target is one registered publish backend plus its dispatch plumbing.
type target struct {
	name  string
	pub   Publisher
	retry *RetryPolicy
}

// Registry maps target names to configured publish adapters.
//
// Construction never fails as a whole: a misconfigured target is logged and
// omitted. Mutation is explicit (Add/Remove); readers work on copy-on-read
// snapshots so a mid-fan-out mutation never tears a result.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*target

	factory AdapterFactory
	log     logx.Logger
}

// NewRegistry builds a registry from per-target configuration.
func NewRegistry(factory AdapterFactory, cfgs map[string]TargetConfig, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{targets: map[string]*target{}, factory: factory, log: log}
	for name, cfg := range cfgs {
		if err := r.Add(name, cfg); err != nil {
			log.Warn("skipping misconfigured publish target",
				logx.String("target", name),
				logx.String("kind", cfg.Kind),
				logx.Err(err))
		}
	}
	return r
}

// Add constructs the adapter for name and inserts it.
// Re-registering an existing name overwrites it: last write wins.
func (r *Registry) Add(name string, cfg TargetConfig) error {
	if name == "" {
		return fmt.Errorf("target name is empty")
	}
	pub, err := r.factory.Build(name, cfg, r.log.With(logx.String("target", name)))
	if err != nil {
		return err
	}

	exec := NewExecutor(r.log, cfg.Timeout, cfg.RatePerSec)
	t := &target{name: name, pub: pub, retry: NewRetryPolicy(exec, cfg.Retry)}

	r.mu.Lock()
	_, replaced := r.targets[name]
	r.targets[name] = t
	r.mu.Unlock()

	if replaced {
		r.log.Info("publish target replaced", logx.String("target", name), logx.String("kind", cfg.Kind))
	} else {
		r.log.Info("publish target registered", logx.String("target", name), logx.String("kind", cfg.Kind))
	}
	return nil
}

// Remove unregisters name. It reports whether an entry existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	_, ok := r.targets[name]
	delete(r.targets, name)
	r.mu.Unlock()
	if ok {
		r.log.Info("publish target removed", logx.String("target", name))
	}
	return ok
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	_, ok := r.targets[name]
	r.mu.RUnlock()
	return ok
}

// Names returns the registered target names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.targets))
	for n := range r.targets {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Kinds returns the factory's static catalog of constructible adapter kinds.
func (r *Registry) Kinds() []string { return r.factory.Kinds() }

func (r *Registry) get(name string) *target {
	r.mu.RLock()
	t := r.targets[name]
	r.mu.RUnlock()
	return t
}

// snapshot returns the current member set, sorted by name. Fan-outs operate
// on the snapshot so concurrent Add/Remove can't change membership mid-run.
func (r *Registry) snapshot() []*target {
	r.mu.RLock()
	ts := make([]*target, 0, len(r.targets))
	for _, t := range r.targets {
		ts = append(ts, t)
	}
	r.mu.RUnlock()
	sort.Slice(ts, func(i, j int) bool { return ts[i].name < ts[j].name })
	return ts
}
