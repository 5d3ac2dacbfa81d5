package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusHandler serves this monitor's registry in the Prometheus text
// format. Mount it at "/metrics".
func (m *Monitor) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
