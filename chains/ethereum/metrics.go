package ethereum

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	callDuration *prometheus.HistogramVec
	callErrors   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chain_contract_call_duration_seconds",
			Help:    "Duration of eth_call reads, labeled by contract method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		callErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chain_contract_call_errors_total",
			Help: "Total number of failed eth_call reads, labeled by contract method.",
		}, []string{"method"}),
	}
	reg.MustRegister(m.callDuration, m.callErrors)
	return m
}

func (m *metrics) timer(method string) *prometheus.Timer {
	return prometheus.NewTimer(m.callDuration.WithLabelValues(method))
}

func (m *metrics) failed(method string) {
	m.callErrors.WithLabelValues(method).Inc()
}
