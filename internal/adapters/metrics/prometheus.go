// Package metrics provides the Prometheus implementation of ports.Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/pluginhost/internal/ports"
)

const namespace = "pluginhost"

// Prometheus records registry and scheduler activity as Prometheus metrics.
// Each instance owns its own registry so several hosts can coexist in one
// process.
type Prometheus struct {
	registry     *prometheus.Registry
	transitions  *prometheus.CounterVec
	hookFailures *prometheus.CounterVec
	ticks        *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	tasks        *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them, along with the
// Go runtime and process collectors, on a fresh registry.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_transitions_total",
			Help:      "Total number of successful plugin lifecycle transitions.",
		}, []string{"side", "phase"}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_failures_total",
			Help:      "Total number of failed unit hooks.",
		}, []string{"side", "kind", "hook"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_ticks_total",
			Help:      "Total number of job scheduler firings.",
		}, []string{"side"}),
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_tick_duration_seconds",
			Help:      "Time spent ticking every job of a side in one firing.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"side"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_tasks_total",
			Help:      "Total number of queued job tasks by result.",
		}, []string{"side", "result"}),
	}

	p.registry.MustRegister(
		p.transitions,
		p.hookFailures,
		p.ticks,
		p.tickDuration,
		p.tasks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// PluginTransition counts a lifecycle transition.
func (p *Prometheus) PluginTransition(side, phase string) {
	p.transitions.WithLabelValues(side, phase).Inc()
}

// HookFailure counts a failed hook.
func (p *Prometheus) HookFailure(side, kind, hook string) {
	p.hookFailures.WithLabelValues(side, kind, hook).Inc()
}

// JobTick records one scheduler firing.
func (p *Prometheus) JobTick(side string, elapsed time.Duration) {
	p.ticks.WithLabelValues(side).Inc()
	p.tickDuration.WithLabelValues(side).Observe(elapsed.Seconds())
}

// JobTask counts a finished task.
func (p *Prometheus) JobTask(side, result string) {
	p.tasks.WithLabelValues(side, result).Inc()
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Ensure Prometheus implements Metrics.
var _ ports.Metrics = (*Prometheus)(nil)
