// Package handler exposes the registry administration API.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civigate/internal/domain"
	"civigate/internal/platform/middleware"
	"civigate/internal/registry"
	"civigate/pkg/platform/httputil"
	"civigate/pkg/requestcontext"
)

// Service is the registry surface the handler drives.
type Service interface {
	Register(ctx context.Context, in registry.RegisterInput) (domain.RegisteredService, error)
	Update(ctx context.Context, name string, in registry.UpdateInput) (domain.RegisteredService, error)
	Delete(ctx context.Context, name string) error
	GetByName(ctx context.Context, name string) (domain.RegisteredService, error)
	ListAll(ctx context.Context) ([]domain.RegisteredService, error)
	PlatformHealth(ctx context.Context) (domain.PlatformHealth, error)
}

// Prober runs an on-demand health check.
type Prober interface {
	CheckNow(ctx context.Context, name string) (domain.HealthStatus, error)
}

// Invalidator drops gateway cache entries after administrative mutations so
// changes propagate before the snapshot TTL expires.
type Invalidator interface {
	Invalidate(ctx context.Context, name string) error
	InvalidateAll(ctx context.Context) error
}

// Handler handles the /registry endpoints.
type Handler struct {
	service   Service
	prober    Prober
	cache     Invalidator
	logger    *slog.Logger
	adminRole string
}

// New creates the registry handler. Mutations are gated on adminRole.
func New(service Service, prober Prober, cache Invalidator, logger *slog.Logger, adminRole string) *Handler {
	return &Handler{
		service:   service,
		prober:    prober,
		cache:     cache,
		logger:    logger,
		adminRole: adminRole,
	}
}

// Routes mounts the registry routes. Reads are open; mutations and
// on-demand probes require the platform admin role.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/registry", func(r chi.Router) {
		r.Get("/health", h.platformHealth)
		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.list)
			r.Get("/{name}", h.get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(h.adminRole))
				r.Post("/", h.register)
				r.Patch("/{name}", h.update)
				r.Delete("/{name}", h.remove)
				r.Post("/{name}/check", h.check)
			})
		})
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	in, ok := httputil.Decode[registry.RegisterInput](w, r, h.logger)
	if !ok {
		return
	}

	svc, err := h.service.Register(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, http.StatusCreated, svc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	in, ok := httputil.Decode[registry.UpdateInput](w, r, h.logger)
	if !ok {
		return
	}

	svc, err := h.service.Update(r.Context(), name, in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	h.invalidate(r.Context(), name)
	httputil.WriteSuccess(w, r, http.StatusOK, svc)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.service.Delete(r.Context(), name); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	h.invalidate(r.Context(), name)
	httputil.WriteSuccess(w, r, http.StatusOK, map[string]string{"name": name, "result": "deregistered"})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	svc, err := h.service.GetByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, http.StatusOK, svc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListAll(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, http.StatusOK, services)
}

func (h *Handler) platformHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.service.PlatformHealth(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, http.StatusOK, health)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, err := h.prober.CheckNow(r.Context(), name)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	// The cached snapshot carries the old health status; drop it so the
	// fresh classification routes immediately.
	h.invalidate(r.Context(), name)
	httputil.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"name":         name,
		"healthStatus": string(status),
	})
}

func (h *Handler) invalidate(ctx context.Context, name string) {
	if err := h.cache.Invalidate(ctx, name); err != nil {
		h.logger.WarnContext(ctx, "failed to invalidate gateway cache",
			"service", name,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}
