// Package registry implements the authoritative catalog of backend services.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"civigate/internal/domain"
	"civigate/internal/events"
	dErrors "civigate/pkg/domain-errors"
	"civigate/pkg/platform/sentinel"
	"civigate/pkg/requestcontext"
)

// nameRe constrains routing names to lowercase alphanumerics with hyphens.
var nameRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Service is the business logic over the store: registration, lookup,
// mutation, and the platform health aggregate.
type Service struct {
	store  Store
	events *events.Publisher
	logger *slog.Logger
}

// New constructs the registry service.
func New(store Store, publisher *events.Publisher, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("registry store is required")
	}
	if publisher == nil {
		return nil, errors.New("event publisher is required")
	}
	return &Service{store: store, events: publisher, logger: logger}, nil
}

// RegisterInput is the registration payload. Zero values take the platform
// defaults.
type RegisterInput struct {
	Name           string               `json:"name"`
	DisplayName    string               `json:"displayName"`
	Description    string               `json:"description"`
	Version        string               `json:"version"`
	Owner          string               `json:"owner"`
	Tags           []string             `json:"tags"`
	APIDocsURL     string               `json:"apiDocsUrl"`
	BaseURL        string               `json:"baseUrl"`
	HealthEndpoint string               `json:"healthEndpoint"`
	Status         domain.ServiceStatus `json:"status"`
	IsPublic       bool                 `json:"isPublic"`
	RequiredRoles  []string             `json:"requiredRoles"`
}

// Register creates a new service record. Registration is idempotent by name
// only in the sense that a duplicate is rejected with Conflict and the
// original record is left untouched.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.RegisteredService, error) {
	if err := validateRegistration(in); err != nil {
		return domain.RegisteredService{}, err
	}

	now := requestcontext.Now(ctx)
	svc := domain.RegisteredService{
		ID:              uuid.NewString(),
		Name:            in.Name,
		DisplayName:     in.DisplayName,
		Description:     in.Description,
		Version:         in.Version,
		Owner:           in.Owner,
		Tags:            in.Tags,
		APIDocsURL:      in.APIDocsURL,
		BaseURL:         strings.TrimSuffix(in.BaseURL, "/"),
		HealthEndpoint:  in.HealthEndpoint,
		Status:          in.Status,
		HealthStatus:    domain.HealthHealthy,
		LastHealthCheck: now,
		IsPublic:        in.IsPublic,
		RequiredRoles:   in.RequiredRoles,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if svc.DisplayName == "" {
		svc.DisplayName = svc.Name
	}
	if svc.HealthEndpoint == "" {
		svc.HealthEndpoint = "/health"
	}
	if !strings.HasPrefix(svc.HealthEndpoint, "/") {
		svc.HealthEndpoint = "/" + svc.HealthEndpoint
	}
	if svc.Status == "" {
		svc.Status = domain.StatusActive
	}
	if svc.Tags == nil {
		svc.Tags = []string{}
	}
	if svc.RequiredRoles == nil {
		svc.RequiredRoles = []string{}
	}
	if ident := requestcontext.Identity(ctx); ident != nil {
		svc.RegisteredBy = ident.Subject
	}

	if err := s.store.Create(ctx, svc); err != nil {
		return domain.RegisteredService{}, s.translate(err, in.Name)
	}

	s.logger.InfoContext(ctx, "service registered",
		"service", svc.Name,
		"base_url", svc.BaseURL,
		"public", svc.IsPublic,
	)
	event := events.Event{Type: events.TypeServiceRegistered, Service: svc.Name}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		event.Detail = map[string]string{"userAgent": ua}
	}
	s.events.Emit(ctx, event)
	return svc, nil
}

// UpdateInput is a partial update; nil fields are left unchanged. Health
// status is probe-owned and deliberately absent.
type UpdateInput struct {
	DisplayName    *string               `json:"displayName"`
	Description    *string               `json:"description"`
	Version        *string               `json:"version"`
	Owner          *string               `json:"owner"`
	Tags           []string              `json:"tags"`
	APIDocsURL     *string               `json:"apiDocsUrl"`
	BaseURL        *string               `json:"baseUrl"`
	HealthEndpoint *string               `json:"healthEndpoint"`
	Status         *domain.ServiceStatus `json:"status"`
	IsPublic       *bool                 `json:"isPublic"`
	RequiredRoles  []string              `json:"requiredRoles"`
}

// Update merges the partial input into the existing record.
func (s *Service) Update(ctx context.Context, name string, in UpdateInput) (domain.RegisteredService, error) {
	svc, err := s.store.GetByName(ctx, name)
	if err != nil {
		return domain.RegisteredService{}, s.translate(err, name)
	}

	if in.DisplayName != nil {
		svc.DisplayName = *in.DisplayName
	}
	if in.Description != nil {
		svc.Description = *in.Description
	}
	if in.Version != nil {
		svc.Version = *in.Version
	}
	if in.Owner != nil {
		svc.Owner = *in.Owner
	}
	if in.Tags != nil {
		svc.Tags = in.Tags
	}
	if in.APIDocsURL != nil {
		svc.APIDocsURL = *in.APIDocsURL
	}
	if in.BaseURL != nil {
		if err := validateBaseURL(*in.BaseURL); err != nil {
			return domain.RegisteredService{}, err
		}
		svc.BaseURL = strings.TrimSuffix(*in.BaseURL, "/")
	}
	if in.HealthEndpoint != nil {
		svc.HealthEndpoint = *in.HealthEndpoint
		if !strings.HasPrefix(svc.HealthEndpoint, "/") {
			svc.HealthEndpoint = "/" + svc.HealthEndpoint
		}
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return domain.RegisteredService{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown status %q", *in.Status))
		}
		svc.Status = *in.Status
	}
	if in.IsPublic != nil {
		svc.IsPublic = *in.IsPublic
	}
	if in.RequiredRoles != nil {
		svc.RequiredRoles = in.RequiredRoles
	}
	svc.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, svc); err != nil {
		return domain.RegisteredService{}, s.translate(err, name)
	}

	s.events.Emit(ctx, events.Event{Type: events.TypeServiceUpdated, Service: svc.Name})
	return svc, nil
}

// UpdateHealthStatus records a probe classification. Called by the health
// checker, keyed by internal id.
func (s *Service) UpdateHealthStatus(ctx context.Context, id string, status domain.HealthStatus) error {
	svc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return s.translate(err, id)
	}

	svc.HealthStatus = status
	svc.LastHealthCheck = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, svc); err != nil {
		return s.translate(err, svc.Name)
	}

	if status == domain.HealthUnhealthy {
		s.logger.WarnContext(ctx, "service is unhealthy",
			"service", svc.Name,
			"base_url", svc.BaseURL,
		)
		s.events.Emit(ctx, events.Event{
			Type:    events.TypeServiceUnhealthy,
			Service: svc.Name,
			Detail:  map[string]string{"healthStatus": string(status)},
		})
	}
	return nil
}

// Delete removes a service record.
func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return s.translate(err, name)
	}
	s.logger.InfoContext(ctx, "service deregistered", "service", name)
	s.events.Emit(ctx, events.Event{Type: events.TypeServiceDeregistered, Service: name})
	return nil
}

// GetByName looks up a single service record.
func (s *Service) GetByName(ctx context.Context, name string) (domain.RegisteredService, error) {
	svc, err := s.store.GetByName(ctx, name)
	if err != nil {
		return domain.RegisteredService{}, s.translate(err, name)
	}
	return svc, nil
}

// ListAll returns every record.
func (s *Service) ListAll(ctx context.Context) ([]domain.RegisteredService, error) {
	return s.store.List(ctx)
}

// ListActive returns services eligible for probing and proxying.
func (s *Service) ListActive(ctx context.Context) ([]domain.RegisteredService, error) {
	return s.store.ListByStatus(ctx, domain.StatusActive)
}

// PlatformHealth aggregates the registry into the operations summary.
func (s *Service) PlatformHealth(ctx context.Context) (domain.PlatformHealth, error) {
	services, err := s.store.List(ctx)
	if err != nil {
		return domain.PlatformHealth{}, err
	}

	health := domain.PlatformHealth{Services: make([]domain.ServiceSummary, 0, len(services))}
	for _, svc := range services {
		health.Total++
		if svc.Status == domain.StatusActive {
			health.Active++
		}
		switch svc.HealthStatus {
		case domain.HealthHealthy:
			health.Healthy++
		case domain.HealthDegraded:
			health.Degraded++
		case domain.HealthUnhealthy:
			health.Unhealthy++
		}
		health.Services = append(health.Services, domain.ServiceSummary{
			Name:            svc.Name,
			Status:          svc.Status,
			HealthStatus:    svc.HealthStatus,
			LastHealthCheck: svc.LastHealthCheck,
		})
	}
	return health, nil
}

func validateRegistration(in RegisterInput) error {
	if !nameRe.MatchString(in.Name) {
		return dErrors.New(dErrors.CodeBadRequest, "name must be lowercase alphanumeric with hyphens")
	}
	if err := validateBaseURL(in.BaseURL); err != nil {
		return err
	}
	if in.Status != "" && !in.Status.Valid() {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown status %q", in.Status))
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dErrors.New(dErrors.CodeBadRequest, "baseUrl must be an absolute http(s) URL")
	}
	return nil
}

func (s *Service) translate(err error, name string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("service %q is not registered", name))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("service %q is already registered", name))
	default:
		return fmt.Errorf("registry store: %w", err)
	}
}
