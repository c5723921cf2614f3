// Package domain defines the registry data model shared by the stores, the
// health checker, and the gateway.
package domain

import "time"

// ServiceStatus is operator-controlled. Only ACTIVE services are probed and
// eligible for proxying.
type ServiceStatus string

const (
	StatusActive      ServiceStatus = "ACTIVE"
	StatusInactive    ServiceStatus = "INACTIVE"
	StatusMaintenance ServiceStatus = "MAINTENANCE"
)

// Valid reports whether the status is a known enum value.
func (s ServiceStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusMaintenance:
		return true
	}
	return false
}

// HealthStatus is probe-controlled and memoryless: every probe cycle
// rewrites it from the latest outcome alone.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// RegisteredService is a backend service known to the platform. Name is the
// only externally addressable key; ID is internal. Status and HealthStatus
// are orthogonal: a MAINTENANCE service is never probed or routed to
// regardless of its health.
type RegisteredService struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	DisplayName     string        `json:"displayName"`
	Description     string        `json:"description,omitempty"`
	Version         string        `json:"version,omitempty"`
	Owner           string        `json:"owner,omitempty"`
	Tags            []string      `json:"tags"`
	APIDocsURL      string        `json:"apiDocsUrl,omitempty"`
	BaseURL         string        `json:"baseUrl"`
	HealthEndpoint  string        `json:"healthEndpoint"`
	Status          ServiceStatus `json:"status"`
	HealthStatus    HealthStatus  `json:"healthStatus"`
	LastHealthCheck time.Time     `json:"lastHealthCheck"`
	IsPublic        bool          `json:"isPublic"`
	RequiredRoles   []string      `json:"requiredRoles"`
	RegisteredBy    string        `json:"registeredBy,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// ServiceSummary is the per-service line of the platform health aggregate.
type ServiceSummary struct {
	Name            string        `json:"name"`
	Status          ServiceStatus `json:"status"`
	HealthStatus    HealthStatus  `json:"healthStatus"`
	LastHealthCheck time.Time     `json:"lastHealthCheck"`
}

// PlatformHealth aggregates the registry for the operations surface.
type PlatformHealth struct {
	Total     int              `json:"total"`
	Active    int              `json:"active"`
	Healthy   int              `json:"healthy"`
	Degraded  int              `json:"degraded"`
	Unhealthy int              `json:"unhealthy"`
	Services  []ServiceSummary `json:"services"`
}
