// Package impl contains the application-specific business rules implementations.
package impl

import (
	"pulse/internal/domain/entity"
	"pulse/internal/domain/service"
)

// syncIdentity reconciles a local identity against verified provider claims.
// Name and email are overwritten when the claims carry them; the role set and
// the provider subject are never touched, because provider claims are not
// trusted for authorization and the subject link is immutable. Returns true
// when anything changed, false for a no-op.
func syncIdentity(identity *entity.Identity, claims *service.ProviderClaims) bool {
	changed := false

	if claims.Name != "" && claims.Name != identity.Name {
		identity.Name = claims.Name
		changed = true
	}
	if claims.Email != "" && claims.Email != identity.Email {
		identity.Email = claims.Email
		changed = true
	}

	return changed
}
