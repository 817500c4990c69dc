package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records OTP verification outcomes and the inconsistency
// counter that backs the reconciliation alert.
type SettlementMetrics struct {
	verifications        *prometheus.CounterVec
	creditsIssued        prometheus.Counter
	reconciliationNeeded prometheus.Counter
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verifications_total",
		Help: "OTP verification attempts by outcome.",
	}, []string{"outcome"})
	creditsIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Wallet credits issued on settlement.",
	})
	reconciliationNeeded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_reconciliation_needed_total",
		Help: "Orders completed with one or more failed seller credits.",
	})
	reg.MustRegister(verifications, creditsIssued, reconciliationNeeded)
	return &SettlementMetrics{
		verifications:        verifications,
		creditsIssued:        creditsIssued,
		reconciliationNeeded: reconciliationNeeded,
	}
}

// ObserveVerification counts one verification attempt with the given outcome.
func (s *SettlementMetrics) ObserveVerification(outcome string) {
	if s == nil || s.verifications == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	s.verifications.WithLabelValues(outcome).Inc()
}

// IncCreditsIssued counts a successful wallet credit.
func (s *SettlementMetrics) IncCreditsIssued() {
	if s == nil || s.creditsIssued == nil {
		return
	}
	s.creditsIssued.Inc()
}

// IncReconciliationNeeded counts an order left in the completed-but-unpaid state.
func (s *SettlementMetrics) IncReconciliationNeeded() {
	if s == nil || s.reconciliationNeeded == nil {
		return
	}
	s.reconciliationNeeded.Inc()
}
