package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowlab/flowsim/sim"
)

// MetricsHook exports engine progress as Prometheus metrics. It attaches to
// the engine as a hook and updates on every step and scheduled event. The
// engine invokes hooks with its own lock held, so the hook never calls back
// into the engine; everything it needs arrives in the hook context.
type MetricsHook struct {
	stepsTotal     prometheus.Counter
	eventsTotal    *prometheus.CounterVec
	scheduledTotal *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	simTime        prometheus.Gauge
}

// NewMetricsHook creates a metrics hook and registers its collectors with
// reg.
func NewMetricsHook(reg prometheus.Registerer) *MetricsHook {
	h := &MetricsHook{
		stepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowsim",
			Name:      "steps_total",
			Help:      "Number of events the engine has processed.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowsim",
			Name:      "events_processed_total",
			Help:      "Processed events, partitioned by event kind.",
		}, []string{"kind"}),
		scheduledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowsim",
			Name:      "events_scheduled_total",
			Help:      "Events entering the queue, partitioned by kind.",
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowsim",
			Name:      "queue_depth",
			Help:      "Number of events currently pending in the queue.",
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowsim",
			Name:      "time_ticks",
			Help:      "Current simulation time in ticks.",
		}),
	}

	reg.MustRegister(
		h.stepsTotal,
		h.eventsTotal,
		h.scheduledTotal,
		h.queueDepth,
		h.simTime,
	)

	return h
}

// Func implements sim.Hook.
func (h *MetricsHook) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Item.(*sim.Event)
	if !ok {
		return
	}

	switch ctx.Pos {
	case sim.HookPosEventScheduled:
		h.scheduledTotal.WithLabelValues(string(evt.Kind)).Inc()
	case sim.HookPosAfterStep:
		h.stepsTotal.Inc()
		h.eventsTotal.WithLabelValues(string(evt.Kind)).Inc()
		h.simTime.Set(float64(evt.Time))

		if depth, ok := ctx.Detail.(int); ok {
			h.queueDepth.Set(float64(depth))
		}
	}
}
