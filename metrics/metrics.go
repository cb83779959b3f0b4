// Package metrics tracks admission outcomes, both as cheap atomic counters
// for in-process snapshots and as prometheus series for scraping.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashstreaming/gasoradar3/types"
)

// AdmissionMetrics counts pipeline decisions.
type AdmissionMetrics struct {
	TotalSubmissions    int32
	RejectedSubmissions int32
	AcceptedSubmissions int32

	decisions *prometheus.CounterVec
}

// NewAdmissionMetrics creates and registers the admission counters on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewAdmissionMetrics(reg prometheus.Registerer) *AdmissionMetrics {
	m := &AdmissionMetrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gasoradar",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Admission decisions by submission kind, deciding gate and outcome.",
		}, []string{"kind", "gate", "outcome"}),
	}
	reg.MustRegister(m.decisions)
	return m
}

// Record counts one pipeline decision.
func (m *AdmissionMetrics) Record(kind types.Kind, decision types.Decision) {
	atomic.AddInt32(&m.TotalSubmissions, 1)

	outcome := "accepted"
	gate := decision.Gate
	if decision.Accepted {
		atomic.AddInt32(&m.AcceptedSubmissions, 1)
		gate = "none"
	} else {
		atomic.AddInt32(&m.RejectedSubmissions, 1)
		outcome = "rejected"
		if gate == "" {
			gate = "unknown"
		}
	}
	m.decisions.WithLabelValues(string(kind), gate, outcome).Inc()
}
