package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
)

// Credential verification outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeReused   = "reused"
	OutcomeRejected = "rejected"
)

// CredentialMetrics counts credential verification outcomes by credential kind.
type CredentialMetrics struct {
	attempts *prometheus.CounterVec
}

// NewCredentialMetrics registers the credential counter with reg, reusing an existing collector if present.
func NewCredentialMetrics(reg prometheus.Registerer) *CredentialMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jumbojolt",
		Subsystem: "identity",
		Name:      "credential_verifications_total",
		Help:      "Credential verification attempts partitioned by credential kind and outcome.",
	}, []string{"kind", "outcome"})

	if err := reg.Register(attempts); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				attempts = existing
			}
		}
	}

	return &CredentialMetrics{attempts: attempts}
}

// ObserveCredential increments the counter for kind and outcome.
func (m *CredentialMetrics) ObserveCredential(kind domain.CredentialKind, outcome string) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(string(kind), outcome).Inc()
}

var _ port.CredentialMetrics = (*CredentialMetrics)(nil)
