package port

import "github.com/jumbojolt/identity/internal/core/domain"

// CredentialMetrics records credential verification outcomes.
type CredentialMetrics interface {
	ObserveCredential(kind domain.CredentialKind, outcome string)
}
