package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes engine counters and timings. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	EventsTotal       prometheus.Counter
	RuleFirings       *prometheus.CounterVec // rule, outcome
	ActionExecutions  *prometheus.CounterVec // action, outcome
	GraphWrites       prometheus.Counter
	CascadeOverflows  prometheus.Counter
	FiringDuration    prometheus.Histogram
	CascadeDepthReach prometheus.Histogram
}

// NewMetrics registers the engine metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relic_events_total",
			Help: "Change events dispatched to the rule engine.",
		}),
		RuleFirings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relic_rule_firings_total",
			Help: "Rule firings by rule name and outcome.",
		}, []string{"rule", "outcome"}),
		ActionExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relic_action_executions_total",
			Help: "Action executions by qualified name and outcome.",
		}, []string{"action", "outcome"}),
		GraphWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relic_graph_writes_total",
			Help: "Property writes applied to the graph store.",
		}),
		CascadeOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relic_cascade_overflows_total",
			Help: "Cascade branches dropped at the depth bound.",
		}),
		FiringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relic_rule_firing_seconds",
			Help:    "Wall time of individual rule firings.",
			Buckets: prometheus.DefBuckets,
		}),
		CascadeDepthReach: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relic_cascade_depth",
			Help:    "Deepest cascade level reached per top-level event.",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		}),
	}
	reg.MustRegister(
		m.EventsTotal, m.RuleFirings, m.ActionExecutions,
		m.GraphWrites, m.CascadeOverflows,
		m.FiringDuration, m.CascadeDepthReach,
	)
	return m
}

func (m *Metrics) event() {
	if m != nil {
		m.EventsTotal.Inc()
	}
}

func (m *Metrics) firing(rule, outcome string) {
	if m != nil {
		m.RuleFirings.WithLabelValues(rule, outcome).Inc()
	}
}

func (m *Metrics) action(name, outcome string) {
	if m != nil {
		m.ActionExecutions.WithLabelValues(name, outcome).Inc()
	}
}

func (m *Metrics) write() {
	if m != nil {
		m.GraphWrites.Inc()
	}
}

func (m *Metrics) overflow() {
	if m != nil {
		m.CascadeOverflows.Inc()
	}
}

func (m *Metrics) firingSeconds(s float64) {
	if m != nil {
		m.FiringDuration.Observe(s)
	}
}

func (m *Metrics) depthReached(d int) {
	if m != nil {
		m.CascadeDepthReach.Observe(float64(d))
	}
}
