// Package metrics exports tick and status metrics to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nidhogg/faculty-map/internal/world"
)

const namespace = "facultymap"

// Collector is a world.TickObserver that records every tick.
type Collector struct {
	registry *prometheus.Registry
	agents   *world.Registry

	ticks       prometheus.Counter
	failures    prometheus.Counter
	transitions *prometheus.CounterVec
	duration    prometheus.Histogram
	byStatus    *prometheus.GaugeVec
}

// New creates a collector with its own Prometheus registry.
func New(agents *world.Registry) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		agents:   agents,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed simulation ticks.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_step_failures_total",
			Help:      "Per-agent tick updates that failed and were skipped.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Status changes, by new status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent moving and classifying all agents.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		byStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Tracked agents, by current status.",
		}, []string{"status"}),
	}
	c.registry.MustRegister(c.ticks, c.failures, c.transitions, c.duration, c.byStatus)
	c.refreshStatus()
	return c
}

// AfterTick implements world.TickObserver.
func (c *Collector) AfterTick(_ context.Context, report world.TickReport) {
	c.ticks.Inc()
	c.failures.Add(float64(report.Failed))
	c.duration.Observe(report.Duration.Seconds())
	for _, ch := range report.Changes {
		c.transitions.WithLabelValues(string(ch.To)).Inc()
	}
	c.refreshStatus()
}

func (c *Collector) refreshStatus() {
	for status, n := range c.agents.CountByStatus() {
		c.byStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

// Gatherer exposes the underlying registry, mainly for tests.
func (c *Collector) Gatherer() prometheus.Gatherer { return c.registry }

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
