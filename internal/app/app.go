// Package app wires the process: config -> logging -> bus -> storage ->
// registry -> agent -> schedule -> http. One App per process, constructed at
// start and passed by handle; nothing here is a global.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/seawingai/ai-marketing-agent/internal/agent"
	"github.com/seawingai/ai-marketing-agent/internal/config"
	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	"github.com/seawingai/ai-marketing-agent/internal/eventbus"
	"github.com/seawingai/ai-marketing-agent/internal/observability/metrics"
	"github.com/seawingai/ai-marketing-agent/internal/provider/llm"
	"github.com/seawingai/ai-marketing-agent/internal/provider/social"
	"github.com/seawingai/ai-marketing-agent/internal/schedule"
	"github.com/seawingai/ai-marketing-agent/internal/server"
	"github.com/seawingai/ai-marketing-agent/internal/storage"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	reg   *dispatch.Registry
	agent *agent.Agent
	sched *schedule.Service
}

// New loads the config and brings up logging. Everything else is built in
// Start so a failed boot leaves nothing half-running.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("component", "config")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		bus:     eventbus.New(),
	}, nil
}

// Start builds the dispatch stack from the committed config and launches the
// background services. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.sup = newSupervisor(ctx, a.log)

	// Storage (optional).
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return err
		}
		store, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, a.log.With(logx.String("component", "storage")))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.store = store
	}

	// Publish registry. Misconfigured targets are skipped inside NewRegistry.
	targetCfgs := map[string]dispatch.TargetConfig{}
	for name, tc := range cfg.Targets {
		dc, err := targetDispatchConfig(name, tc)
		if err != nil {
			a.log.Warn("skipping target with bad configuration",
				logx.String("target", name), logx.Err(err))
			continue
		}
		targetCfgs[name] = dc
	}
	a.reg = dispatch.NewRegistry(social.NewFactory(), targetCfgs,
		a.log.With(logx.String("component", "registry")))

	// Generation side (optional).
	primary, secondary := a.buildGenerators(cfg.LLM)

	llmTimeout, err := config.ParseDurationOrDefault("llm.timeout", cfg.LLM.Timeout, 30*time.Second)
	if err != nil {
		return err
	}
	llmRetry, err := llmRetryOptions(cfg.LLM)
	if err != nil {
		return err
	}
	a.agent = agent.New(agent.Options{
		Primary:      primary,
		Secondary:    secondary,
		LLMTimeout:   llmTimeout,
		LLMRetry:     llmRetry,
		OuterRetries: cfg.LLM.OuterRetries,
		Registry:     a.reg,
		Bus:          a.bus,
		Log:          a.log.With(logx.String("component", "agent")),
	})

	// Schedule service needs a store.
	if cfg.Schedule.Enabled {
		if a.store == nil {
			a.log.Warn("schedule enabled but storage is disabled; skipping scheduler")
		} else {
			a.sched = schedule.New(schedule.Config{
				Enabled:  true,
				Timezone: cfg.Schedule.Timezone,
			}, a.agent, a.store, a.log.With(logx.String("component", "schedule")))
			if err := a.sched.Start(a.sup.Context()); err != nil {
				return fmt.Errorf("start schedule service: %w", err)
			}
		}
	}

	// Metrics collector rides the bus regardless of whether the endpoint is
	// mounted; the series are cheap and the subscriber keeps the bus drained.
	collector := metrics.New(a.bus, a.log.With(logx.String("component", "metrics")))
	a.sup.Go("metrics", func(ctx context.Context) error {
		collector.Run(ctx)
		return nil
	})

	if cfg.Server.Enabled {
		srvCfg, err := serverConfig(cfg)
		if err != nil {
			return err
		}
		srv := server.New(srvCfg, a.agent, a.sched, a.store, collector.Registry(),
			a.log.With(logx.String("component", "http")))
		a.sup.Go("http", srv.Run)
	}

	// Live reload: watcher parses and validates; the consumer applies.
	a.cfgm.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})
	a.sup.Go("config-watch", a.cfgm.Watch)
	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config-apply", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		prev := cfg
		for {
			select {
			case <-ctx.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyConfig(prev, next)
				prev = next
			}
		}
	})

	a.log.Info("agent started",
		logx.Int("targets", len(a.reg.Names())),
		logx.Bool("llm", primary != nil),
		logx.Bool("storage", a.store != nil),
		logx.Bool("schedule", a.sched != nil),
		logx.Bool("http", cfg.Server.Enabled))
	return nil
}

// Stop winds everything down: goroutines first, then the scheduler and
// storage, logging last.
func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			a.log.Warn("shutdown wait expired", logx.Err(err))
		}
	}
	if a.sched != nil {
		a.sched.Stop(ctx)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("agent stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// Agent exposes the facade, mainly for embedding callers and tests.
func (a *App) Agent() *agent.Agent { return a.agent }

func (a *App) buildGenerators(cfg config.LLMConfig) (primary, secondary dispatch.Generator) {
	if cfg.Primary.Kind != "" {
		gen, err := llm.New(providerSettings(cfg.Primary), a.log.With(logx.String("component", "llm")))
		if err != nil {
			a.log.Warn("primary llm provider unavailable",
				logx.String("kind", cfg.Primary.Kind), logx.Err(err))
		} else {
			primary = gen
		}
	}
	if cfg.Secondary != nil {
		gen, err := llm.New(providerSettings(*cfg.Secondary), a.log.With(logx.String("component", "llm")))
		if err != nil {
			a.log.Warn("secondary llm provider unavailable",
				logx.String("kind", cfg.Secondary.Kind), logx.Err(err))
		} else {
			secondary = gen
		}
	}
	return primary, secondary
}

// applyConfig re-applies the reloadable sections: logging and target
// membership. Provider, storage, and server changes need a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs, targets := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		return
	}
	a.log.Info("config reloaded", append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)

	if next.Logging != prev.Logging {
		a.logs.Apply(logx.Config{
			Level:   next.Logging.Level,
			Console: next.Logging.Console,
			File: logx.FileConfig{
				Enabled: next.Logging.File.Enabled,
				Path:    next.Logging.File.Path,
			},
		})
	}

	for _, name := range targets {
		tc, ok := next.Targets[name]
		if !ok {
			if a.reg.Remove(name) {
				a.log.Info("target removed via reload", logx.String("target", name))
			}
			continue
		}
		dc, err := targetDispatchConfig(name, tc)
		if err != nil {
			a.log.Warn("reloaded target has bad configuration",
				logx.String("target", name), logx.Err(err))
			continue
		}
		if err := a.reg.Add(name, dc); err != nil {
			a.log.Warn("target re-registration failed",
				logx.String("target", name), logx.Err(err))
		}
	}
}

func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := llmRetryOptions(cfg.LLM); err != nil {
		return err
	}
	for name, tc := range cfg.Targets {
		if _, err := targetDispatchConfig(name, tc); err != nil {
			return fmt.Errorf("target %q: %w", name, err)
		}
	}
	return nil
}

func providerSettings(p config.ProviderConfig) llm.Settings {
	return llm.Settings{Kind: p.Kind, Model: p.Model, APIKey: p.APIKey, BaseURL: p.BaseURL}
}

func llmRetryOptions(cfg config.LLMConfig) (dispatch.RetryOptions, error) {
	base, err := config.ParseDurationField("llm.retry_base", cfg.RetryBase)
	if err != nil {
		return dispatch.RetryOptions{}, err
	}
	maxDelay, err := config.ParseDurationField("llm.retry_max_delay", cfg.RetryMaxDelay)
	if err != nil {
		return dispatch.RetryOptions{}, err
	}
	return dispatch.RetryOptions{MaxAttempts: cfg.RetryMax, BaseDelay: base, MaxDelay: maxDelay}, nil
}

func targetDispatchConfig(name string, tc config.TargetConfig) (dispatch.TargetConfig, error) {
	timeout, err := config.ParseDurationField("targets."+name+".timeout", tc.Timeout)
	if err != nil {
		return dispatch.TargetConfig{}, err
	}
	base, err := config.ParseDurationField("targets."+name+".retry_base", tc.RetryBase)
	if err != nil {
		return dispatch.TargetConfig{}, err
	}
	maxDelay, err := config.ParseDurationField("targets."+name+".retry_max_delay", tc.RetryMaxDelay)
	if err != nil {
		return dispatch.TargetConfig{}, err
	}
	return dispatch.TargetConfig{
		Kind:        tc.Kind,
		Credentials: tc.Credentials,
		Timeout:     timeout,
		RatePerSec:  tc.RatePerSec,
		Retry:       dispatch.RetryOptions{MaxAttempts: tc.RetryMax, BaseDelay: base, MaxDelay: maxDelay},
	}, nil
}

func serverConfig(cfg *config.Config) (server.Config, error) {
	read, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationField("server.idle_timeout", cfg.Server.IdleTimeout)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:         cfg.Server.Addr,
		Metrics:      cfg.Server.Metrics,
		Pprof:        cfg.Server.Pprof,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		HistoryLimit: cfg.Schedule.HistoryLimit,
	}, nil
}
