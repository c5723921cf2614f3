// Package health probes active services and writes their classification back
// to the registry.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"civigate/internal/domain"
	dErrors "civigate/pkg/domain-errors"
)

var probeResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "civigate_health_probe_results_total",
	Help: "Health probe outcomes by resulting classification",
}, []string{"result"})

// Registry is the slice of the service registry the checker needs.
type Registry interface {
	ListActive(ctx context.Context) ([]domain.RegisteredService, error)
	GetByName(ctx context.Context, name string) (domain.RegisteredService, error)
	UpdateHealthStatus(ctx context.Context, id string, status domain.HealthStatus) error
}

// Checker runs probe cycles on a fixed interval. Cycles never overlap: a
// tick that arrives while the previous cycle is still running is skipped
// outright. Probes within one cycle run concurrently and are isolated from
// each other.
type Checker struct {
	registry     Registry
	client       *http.Client
	logger       *slog.Logger
	tracer       trace.Tracer
	interval     time.Duration
	probeTimeout time.Duration
	running      atomic.Bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithInterval overrides the cycle interval.
func WithInterval(interval time.Duration) Option {
	return func(c *Checker) { c.interval = interval }
}

// WithProbeTimeout overrides the per-probe timeout.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(c *Checker) { c.probeTimeout = timeout }
}

// WithHTTPClient overrides the probe client. Test hook.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) { c.client = client }
}

// New constructs a checker with the platform defaults (30s interval, 5s
// per-probe timeout).
func New(registry Registry, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		registry:     registry,
		client:       &http.Client{},
		logger:       logger,
		tracer:       otel.Tracer("civigate/health"),
		interval:     30 * time.Second,
		probeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives probe cycles until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !c.tryCycle(ctx) {
				c.logger.WarnContext(ctx, "previous health-check cycle still running, skipping tick")
			}
		}
	}
}

// tryCycle starts a cycle in the background unless one is already running.
// Returns false when the tick was skipped.
func (c *Checker) tryCycle(ctx context.Context) bool {
	if !c.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer c.running.Store(false)
		c.cycle(ctx)
	}()
	return true
}

// cycle probes every active service concurrently and writes the
// classification back unconditionally so lastHealthCheck always advances.
func (c *Checker) cycle(ctx context.Context) {
	services, err := c.registry.ListActive(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "health cycle could not list active services", "error", err)
		return
	}
	if len(services) == 0 {
		return
	}

	var g errgroup.Group
	for _, svc := range services {
		g.Go(func() error {
			status := c.probe(ctx, svc)
			if err := c.registry.UpdateHealthStatus(ctx, svc.ID, status); err != nil {
				c.logger.ErrorContext(ctx, "failed to record health status",
					"service", svc.Name,
					"status", status,
					"error", err,
				)
			}
			// Probe failures are isolated per service and never abort the
			// rest of the cycle.
			return nil
		})
	}
	_ = g.Wait()
}

// CheckNow probes a single service on demand and records the result.
func (c *Checker) CheckNow(ctx context.Context, name string) (domain.HealthStatus, error) {
	svc, err := c.registry.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	if svc.Status != domain.StatusActive {
		return "", dErrors.New(dErrors.CodeUnavailable, fmt.Sprintf("service %q is not active", name))
	}

	status := c.probe(ctx, svc)
	if err := c.registry.UpdateHealthStatus(ctx, svc.ID, status); err != nil {
		return "", err
	}
	return status, nil
}

// probe issues one health-check call and classifies the outcome.
func (c *Checker) probe(ctx context.Context, svc domain.RegisteredService) domain.HealthStatus {
	ctx, span := c.tracer.Start(ctx, "health.probe",
		trace.WithAttributes(attribute.String("service.name", svc.Name)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	probeURL := strings.TrimSuffix(svc.BaseURL, "/") + svc.HealthEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return record(span, domain.HealthUnhealthy)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return record(span, domain.HealthUnhealthy)
	}
	defer resp.Body.Close()

	return record(span, classify(resp.StatusCode, resp.Body))
}

func record(span trace.Span, status domain.HealthStatus) domain.HealthStatus {
	span.SetAttributes(attribute.String("service.health", string(status)))
	probeResults.WithLabelValues(string(status)).Inc()
	return status
}

// classify maps a probe response to a health status. The rule is
// deterministic and memoryless: server errors are UNHEALTHY, client errors
// DEGRADED, and a successful response is HEALTHY unless its body carries an
// explicit degraded signal. A 200 with no recognizable status field counts
// as healthy; the response itself is the evidence.
func classify(statusCode int, body io.Reader) domain.HealthStatus {
	switch {
	case statusCode >= 500:
		return domain.HealthUnhealthy
	case statusCode >= 400:
		return domain.HealthDegraded
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&payload); err == nil {
		switch strings.ToLower(payload.Status) {
		case "healthy":
			return domain.HealthHealthy
		case "degraded":
			return domain.HealthDegraded
		}
	}
	return domain.HealthHealthy
}
