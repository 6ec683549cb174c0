package stats

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/remiblancher/crl-engine/internal/crl"
)

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	Registry *prometheus.Registry

	generated       *prometheus.CounterVec
	generationSecs  *prometheus.HistogramVec
	activeNumber    *prometheus.GaugeVec
	activeEntries   *prometheus.GaugeVec
	distributions   *prometheus.CounterVec
	expiredSwept    prometheus.Counter
	cleanupDeleted  prometheus.Counter
}

// NewMetrics creates and registers the engine's metrics on a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crlengine_crls_generated_total",
			Help: "CRL generation attempts by CA, trigger and result.",
		}, []string{"ca", "trigger", "result"}),
		generationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crlengine_generation_duration_seconds",
			Help:    "Wall time of the generation pipeline.",
			Buckets: prometheus.DefBuckets,
		}, []string{"ca"}),
		activeNumber: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crlengine_active_crl_number",
			Help: "CRL number of the CA's active CRL.",
		}, []string{"ca"}),
		activeEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crlengine_active_crl_entries",
			Help: "Revoked entry count of the CA's active CRL.",
		}, []string{"ca"}),
		distributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crlengine_distributions_total",
			Help: "Publication attempts by CA and result.",
		}, []string{"ca", "result"}),
		expiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crlengine_crls_expired_total",
			Help: "CRLs transitioned to expired by the sweeper.",
		}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crlengine_crls_deleted_total",
			Help: "Retired CRLs removed by cleanup.",
		}),
	}
	reg.MustRegister(m.generated, m.generationSecs, m.activeNumber, m.activeEntries,
		m.distributions, m.expiredSwept, m.cleanupDeleted)
	return m
}

// ObserveGeneration records one generation attempt.
func (m *Metrics) ObserveGeneration(caID string, trigger crl.Trigger, ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.generated.WithLabelValues(caID, string(trigger), result).Inc()
	if ok {
		m.generationSecs.WithLabelValues(caID).Observe(seconds)
	}
}

// SetActive records the CA's new active CRL.
func (m *Metrics) SetActive(c *crl.CRL) {
	if m == nil {
		return
	}
	m.activeNumber.WithLabelValues(c.CAID).Set(float64(c.Number))
	m.activeEntries.WithLabelValues(c.CAID).Set(float64(len(c.Entries)))
}

// ObserveDistribution records publication outcomes for one run.
func (m *Metrics) ObserveDistribution(caID string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.distributions.WithLabelValues(caID, "success").Add(float64(succeeded))
	m.distributions.WithLabelValues(caID, "failure").Add(float64(failed))
}

// ObserveSweep records expired CRL transitions.
func (m *Metrics) ObserveSweep(count int) {
	if m == nil {
		return
	}
	m.expiredSwept.Add(float64(count))
}

// ObserveCleanup records deleted CRLs.
func (m *Metrics) ObserveCleanup(count int) {
	if m == nil {
		return
	}
	m.cleanupDeleted.Add(float64(count))
}
