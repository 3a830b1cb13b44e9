// Package metrics exports dispatch outcomes as Prometheus series. It is a
// plain event-bus consumer: the dispatch core never knows it exists.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seawingai/ai-marketing-agent/internal/agent"
	"github.com/seawingai/ai-marketing-agent/internal/dispatch"
	"github.com/seawingai/ai-marketing-agent/internal/eventbus"
	logx "github.com/seawingai/ai-marketing-agent/pkg/logx"
)

type Collector struct {
	log logx.Logger
	bus eventbus.Bus
	reg *prometheus.Registry

	publishOutcomes  *prometheus.CounterVec
	publishAttempts  *prometheus.CounterVec
	fanoutsTotal     *prometheus.CounterVec
	fanoutDuration   prometheus.Histogram
	generateOutcomes *prometheus.CounterVec
	generateDuration prometheus.Histogram
	busDropped       prometheus.GaugeFunc
}

// New builds the collector and registers its series on a fresh registry
// (the default registry stays untouched so tests can run in parallel).
func New(bus eventbus.Bus, log logx.Logger) *Collector {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Collector{
		log: log,
		bus: bus,
		reg: prometheus.NewRegistry(),

		publishOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_publish_outcomes_total",
				Help: "Per-target publish outcomes by result.",
			},
			[]string{"target", "result"},
		),
		publishAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_publish_attempts_total",
				Help: "Dispatch attempts per target, retries included.",
			},
			[]string{"target"},
		),
		fanoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_fanouts_total",
				Help: "Completed fan-outs by overall result.",
			},
			[]string{"result"},
		),
		fanoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_fanout_duration_seconds",
				Help:    "Wall time of whole fan-outs.",
				Buckets: prometheus.DefBuckets,
			},
		),
		generateOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_generate_outcomes_total",
				Help: "Generation requests by result.",
			},
			[]string{"result"},
		),
		generateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_generate_duration_seconds",
				Help:    "Wall time of generation requests, fallback included.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	c.busDropped = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agent_eventbus_dropped_total",
			Help: "Events discarded because a subscriber lagged.",
		},
		func() float64 { return float64(bus.Dropped()) },
	)

	c.reg.MustRegister(
		c.publishOutcomes,
		c.publishAttempts,
		c.fanoutsTotal,
		c.fanoutDuration,
		c.generateOutcomes,
		c.generateDuration,
		c.busDropped,
	)
	return c
}

// Registry exposes the series for promhttp.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Run consumes bus events until ctx is done. Call it on its own goroutine.
func (c *Collector) Run(ctx context.Context) {
	ch, unsub := c.bus.Subscribe(256)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.observe(ev)
		}
	}
}

func (c *Collector) observe(ev eventbus.Event) {
	switch ev.Type {
	case dispatch.EventTargetSuccess, dispatch.EventTargetFailure:
		te, ok := ev.Data.(dispatch.TargetEvent)
		if !ok {
			return
		}
		c.publishOutcomes.WithLabelValues(te.Target, resultLabel(te.Outcome.Success)).Inc()
		c.publishAttempts.WithLabelValues(te.Target).Add(float64(te.Attempts))

	case dispatch.EventFanOutComplete:
		fe, ok := ev.Data.(dispatch.FanOutEvent)
		if !ok {
			return
		}
		c.fanoutsTotal.WithLabelValues(resultLabel(fe.Result.Success)).Inc()
		c.fanoutDuration.Observe(fe.Elapsed.Seconds())

	case agent.EventGenerateComplete, agent.EventGenerateFailure:
		ge, ok := ev.Data.(agent.GenerateEvent)
		if !ok {
			return
		}
		c.generateOutcomes.WithLabelValues(resultLabel(ev.Type == agent.EventGenerateComplete)).Inc()
		c.generateDuration.Observe(ge.Elapsed.Seconds())
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
