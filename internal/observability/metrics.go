// Package observability exposes Prometheus instruments for the
// orchestration core.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/task"
)

// Namespace prefixes every metric name.
const Namespace = "deskmate"

// Metrics groups the instruments. Each Metrics owns its registry so several
// instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Tasks        *prometheus.CounterVec
	Events       *prometheus.CounterVec
	PluginLoads  *prometheus.CounterVec
	LoadedPlugin prometheus.Gauge
	QueueLength  prometheus.GaugeFunc

	HTTPRequests *prometheus.CounterVec
	WSClients    prometheus.Gauge
	WSMessages   *prometheus.CounterVec
}

// NewMetrics registers all instruments on a fresh registry. queueLen, when
// non-nil, is sampled for the worker queue gauge.
func NewMetrics(queueLen func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tasks_total",
			Help:      "Task transitions by outcome.",
		}, []string{"outcome"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Broadcast events by variant.",
		}, []string{"event"}),
		PluginLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "plugin_loads_total",
			Help:      "Plugin lifecycle actions by plugin and action.",
		}, []string{"plugin", "action"}),
		LoadedPlugin: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "loaded_plugins",
			Help:      "Plugins currently loaded.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Daemon API requests by route and status code.",
		}, []string{"method", "route", "code"}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "ws_clients",
			Help:      "Connected event stream clients.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ws_messages_total",
			Help:      "Event stream messages by result.",
		}, []string{"result"}),
	}
	if queueLen != nil {
		m.QueueLength = f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "worker_queue_length",
			Help:      "Jobs waiting for the orchestration loop.",
		}, func() float64 { return float64(queueLen()) })
	}
	return m
}

// TaskTransition implements task.Observer.
func (m *Metrics) TaskTransition(_ string, outcome task.Outcome) {
	m.Tasks.WithLabelValues(string(outcome)).Inc()
}

// EventTriggered implements task.Observer.
func (m *Metrics) EventTriggered(e event.Event) {
	m.Events.WithLabelValues(event.Name(e)).Inc()
}

// PluginAction records a plugin lifecycle step such as "load" or "unload".
func (m *Metrics) PluginAction(id, action string) {
	m.PluginLoads.WithLabelValues(id, action).Inc()
}

// SetLoadedPlugins records how many plugins are loaded.
func (m *Metrics) SetLoadedPlugins(n int) {
	m.LoadedPlugin.Set(float64(n))
}

// ObserveRequest counts one API request.
func (m *Metrics) ObserveRequest(method, route string, code int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
