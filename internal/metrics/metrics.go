// Package metrics holds the Prometheus instruments for the attendance engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RegistrationsCreated *prometheus.CounterVec
	PaymentOutcomes      *prometheus.CounterVec
	TeamOperations       *prometheus.CounterVec
	EntryScans           *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RegistrationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fest_registrations_created_total",
			Help: "Registrations created, by path (free or checkout).",
		}, []string{"path"}),
		PaymentOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fest_payment_outcomes_total",
			Help: "Payment outcomes applied, by resulting status or rejection reason.",
		}, []string{"result"}),
		TeamOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fest_team_operations_total",
			Help: "Team create/add/remove operations, by operation and result.",
		}, []string{"op", "result"}),
		EntryScans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fest_entry_scans_total",
			Help: "Credential scans at the gate, by decision.",
		}, []string{"decision"}),
	}
}

// IncRegistration counts a created registration. Nil-safe.
func (m *Metrics) IncRegistration(path string) {
	if m == nil {
		return
	}
	m.RegistrationsCreated.WithLabelValues(path).Inc()
}

// IncPayment counts an applied or rejected payment outcome. Nil-safe.
func (m *Metrics) IncPayment(result string) {
	if m == nil {
		return
	}
	m.PaymentOutcomes.WithLabelValues(result).Inc()
}

// IncTeam counts a team operation. Nil-safe.
func (m *Metrics) IncTeam(op, result string) {
	if m == nil {
		return
	}
	m.TeamOperations.WithLabelValues(op, result).Inc()
}

// IncScan counts a gate decision. Nil-safe.
func (m *Metrics) IncScan(decision string) {
	if m == nil {
		return
	}
	m.EntryScans.WithLabelValues(decision).Inc()
}
