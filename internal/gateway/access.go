package gateway

import (
	"fmt"

	"civigate/internal/domain"
	id "civigate/pkg/domain"
	dErrors "civigate/pkg/domain-errors"
)

// Decide is the pure routability decision for one resolved service and one
// caller. A nil return means the request may be forwarded. svc is nil when
// the lookup found nothing; caller is nil when the request is anonymous.
//
// DEGRADED services remain routable: only UNHEALTHY (and non-ACTIVE
// lifecycle states) take a service out of rotation. Role checks apply to
// authenticated callers only; anonymous access is settled by isPublic alone.
func Decide(svc *domain.RegisteredService, caller *id.Identity) error {
	if svc == nil {
		return dErrors.New(dErrors.CodeNotFound, "service is not registered")
	}
	if svc.Status != domain.StatusActive || svc.HealthStatus == domain.HealthUnhealthy {
		return dErrors.New(dErrors.CodeUnavailable,
			fmt.Sprintf("%s is temporarily unavailable", svc.DisplayName))
	}
	if !svc.IsPublic && caller == nil {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if caller != nil && len(svc.RequiredRoles) > 0 && !caller.HasAnyRole(svc.RequiredRoles) {
		return dErrors.New(dErrors.CodeForbidden,
			fmt.Sprintf("access to %s requires additional permissions", svc.DisplayName))
	}
	return nil
}
