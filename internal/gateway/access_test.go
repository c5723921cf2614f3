package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"civigate/internal/domain"
	id "civigate/pkg/domain"
	dErrors "civigate/pkg/domain-errors"
)

func routableService() domain.RegisteredService {
	return domain.RegisteredService{
		Name:         "permits",
		DisplayName:  "Building Permits",
		Status:       domain.StatusActive,
		HealthStatus: domain.HealthHealthy,
		IsPublic:     true,
	}
}

func TestDecide(t *testing.T) {
	citizen := &id.Identity{Subject: "citizen-1", Roles: []string{"citizen"}}

	cases := []struct {
		name   string
		svc    func() *domain.RegisteredService
		caller *id.Identity
		want   dErrors.Code
		allow  bool
	}{
		{
			name:  "absent service is not found",
			svc:   func() *domain.RegisteredService { return nil },
			want:  dErrors.CodeNotFound,
		},
		{
			name: "maintenance service is unavailable",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.Status = domain.StatusMaintenance
				return &svc
			},
			want: dErrors.CodeUnavailable,
		},
		{
			name: "inactive service is unavailable",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.Status = domain.StatusInactive
				return &svc
			},
			want: dErrors.CodeUnavailable,
		},
		{
			name: "unhealthy service is unavailable even for admins",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.HealthStatus = domain.HealthUnhealthy
				return &svc
			},
			caller: citizen,
			want:   dErrors.CodeUnavailable,
		},
		{
			name: "degraded service is still routable",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.HealthStatus = domain.HealthDegraded
				return &svc
			},
			allow: true,
		},
		{
			name: "private service rejects anonymous callers",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.IsPublic = false
				return &svc
			},
			want: dErrors.CodeUnauthorized,
		},
		{
			name: "required roles gate authenticated callers",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.RequiredRoles = []string{"inspector"}
				return &svc
			},
			caller: citizen,
			want:   dErrors.CodeForbidden,
		},
		{
			name: "role intersection allows",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.RequiredRoles = []string{"inspector", "citizen"}
				return &svc
			},
			caller: citizen,
			allow:  true,
		},
		{
			name: "public service with required roles still allows anonymous",
			svc: func() *domain.RegisteredService {
				svc := routableService()
				svc.RequiredRoles = []string{"inspector"}
				return &svc
			},
			allow: true,
		},
		{
			name:   "public healthy service allows anonymous",
			svc:    func() *domain.RegisteredService { svc := routableService(); return &svc },
			allow:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Decide(tc.svc(), tc.caller)
			if tc.allow {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.want, dErrors.CodeOf(err))
		})
	}
}
