package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Dispatch metrics
	EventsTotal          prometheus.Counter
	MatchesTotal         *prometheus.CounterVec
	HandlerFailuresTotal *prometheus.CounterVec
	DispatchErrorsTotal  prometheus.Counter

	// Plugin catalog metrics
	PluginsKnown  prometheus.Gauge
	PluginsLoaded prometheus.Gauge

	// Gateway metrics
	GatewayCallsTotal      *prometheus.CounterVec
	GatewayCallErrorsTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		EventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "events_total",
				Help: "Total number of gateway events dispatched",
			},
		),
		MatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matches_total",
				Help: "Total number of trigger matches",
			},
			[]string{"plugin", "trigger"},
		),
		HandlerFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handler_failures_total",
				Help: "Total number of handler errors and panics",
			},
			[]string{"plugin", "trigger"},
		),
		DispatchErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dispatch_errors_total",
				Help: "Total number of dispatch-side failures",
			},
		),

		PluginsKnown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugins_known",
				Help: "Number of plugin packages in the catalog",
			},
		),
		PluginsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugins_loaded",
				Help: "Number of plugins with an active handler table",
			},
		),

		GatewayCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_calls_total",
				Help: "Total number of outbound gateway calls",
			},
			[]string{"action"},
		),
		GatewayCallErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_call_errors_total",
				Help: "Total number of failed outbound gateway calls",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.EventsTotal)
	m.registry.MustRegister(m.MatchesTotal)
	m.registry.MustRegister(m.HandlerFailuresTotal)
	m.registry.MustRegister(m.DispatchErrorsTotal)

	m.registry.MustRegister(m.PluginsKnown)
	m.registry.MustRegister(m.PluginsLoaded)

	m.registry.MustRegister(m.GatewayCallsTotal)
	m.registry.MustRegister(m.GatewayCallErrorsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
