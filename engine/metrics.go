package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

// Metrics holds the Prometheus collectors shared by every adapter.
// Each adapter registers its own set under a "venue" const label so that
// several venues can share one registry.
type Metrics struct {
	codesGenerated  *prometheus.CounterVec
	quoteDuration   *prometheus.HistogramVec
	configMutations *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for one venue.
// A nil registerer gets a private registry.
func NewMetrics(reg prometheus.Registerer, venue string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	constLabels := prometheus.Labels{"venue": venue}
	m := &Metrics{
		codesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "adapter_codes_generated_total",
			Help:        "Total number of instruction sequences compiled, labeled by operation.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		quoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "adapter_quote_duration_seconds",
			Help:        "Time taken to price an amount, including collaborator reads.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"operation"}),
		configMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "adapter_config_mutations_total",
			Help:        "Total number of configuration setter calls, labeled by setter and result.",
			ConstLabels: constLabels,
		}, []string{"setter", "result"}),
	}
	reg.MustRegister(m.codesGenerated, m.quoteDuration, m.configMutations)
	return m
}

// CodesGenerated counts one compiled sequence for operation.
func (m *Metrics) CodesGenerated(operation string) {
	m.codesGenerated.WithLabelValues(operation).Inc()
}

// QuoteTimer starts a timer; call ObserveDuration when the quote finishes.
func (m *Metrics) QuoteTimer(operation string) *prometheus.Timer {
	return prometheus.NewTimer(m.quoteDuration.WithLabelValues(operation))
}

// ConfigMutation counts one setter call. err decides the result label.
func (m *Metrics) ConfigMutation(setter string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.configMutations.WithLabelValues(setter, result).Inc()
}
