package health

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civigate/internal/domain"
	dErrors "civigate/pkg/domain-errors"
)

// fakeRegistry records health-status writes for inspection.
type fakeRegistry struct {
	mu       sync.Mutex
	services []domain.RegisteredService
	statuses map[string]domain.HealthStatus
}

func newFakeRegistry(services ...domain.RegisteredService) *fakeRegistry {
	return &fakeRegistry{services: services, statuses: map[string]domain.HealthStatus{}}
}

func (f *fakeRegistry) ListActive(_ context.Context) ([]domain.RegisteredService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := []domain.RegisteredService{}
	for _, svc := range f.services {
		if svc.Status == domain.StatusActive {
			active = append(active, svc)
		}
	}
	return active, nil
}

func (f *fakeRegistry) GetByName(_ context.Context, name string) (domain.RegisteredService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, svc := range f.services {
		if svc.Name == name {
			return svc, nil
		}
	}
	return domain.RegisteredService{}, dErrors.New(dErrors.CodeNotFound, "not registered")
}

func (f *fakeRegistry) UpdateHealthStatus(_ context.Context, id string, status domain.HealthStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeRegistry) statusOf(id string) (domain.HealthStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[id]
	return status, ok
}

func probeTarget(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func activeService(id, baseURL string) domain.RegisteredService {
	return domain.RegisteredService{
		ID:             id,
		Name:           id,
		BaseURL:        baseURL,
		HealthEndpoint: "/health",
		Status:         domain.StatusActive,
	}
}

func TestCheckNowClassification(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    domain.HealthStatus
	}{
		{
			name: "healthy body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"status":"healthy"}`))
			},
			want: domain.HealthHealthy,
		},
		{
			name: "degraded body on 200",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"status":"degraded"}`))
			},
			want: domain.HealthDegraded,
		},
		{
			name: "unrecognized body counts as healthy",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"uptime":42}`))
			},
			want: domain.HealthHealthy,
		},
		{
			name: "non-JSON 200 counts as healthy",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("OK"))
			},
			want: domain.HealthHealthy,
		},
		{
			name: "client error is degraded",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: domain.HealthDegraded,
		},
		{
			name: "server error is unhealthy",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			want: domain.HealthUnhealthy,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := probeTarget(t, tc.handler)
			reg := newFakeRegistry(activeService("svc", srv.URL))
			checker := New(reg, slog.Default())

			status, err := checker.CheckNow(context.Background(), "svc")
			require.NoError(t, err)
			assert.Equal(t, tc.want, status)

			recorded, ok := reg.statusOf("svc")
			require.True(t, ok, "probe result must be written back")
			assert.Equal(t, tc.want, recorded)
		})
	}
}

func TestCheckNowUnreachableServiceIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on

	reg := newFakeRegistry(activeService("svc", srv.URL))
	checker := New(reg, slog.Default())

	status, err := checker.CheckNow(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthUnhealthy, status)
}

func TestCheckNowTimeoutIsUnhealthy(t *testing.T) {
	srv := probeTarget(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	reg := newFakeRegistry(activeService("svc", srv.URL))
	checker := New(reg, slog.Default(), WithProbeTimeout(50*time.Millisecond))

	status, err := checker.CheckNow(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthUnhealthy, status)
}

func TestCheckNowRejectsInactiveService(t *testing.T) {
	svc := activeService("svc", "http://unused:9000")
	svc.Status = domain.StatusMaintenance
	reg := newFakeRegistry(svc)
	checker := New(reg, slog.Default())

	_, err := checker.CheckNow(context.Background(), "svc")
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))
}

func TestCheckNowUnknownService(t *testing.T) {
	checker := New(newFakeRegistry(), slog.Default())

	_, err := checker.CheckNow(context.Background(), "ghost")
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func TestCycleProbesAllActiveServices(t *testing.T) {
	healthy := probeTarget(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	})
	failing := probeTarget(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	inactive := activeService("parked", healthy.URL)
	inactive.Status = domain.StatusInactive

	reg := newFakeRegistry(
		activeService("orders", healthy.URL),
		activeService("billing", failing.URL),
		inactive,
	)
	checker := New(reg, slog.Default())

	checker.cycle(context.Background())

	status, ok := reg.statusOf("orders")
	require.True(t, ok)
	assert.Equal(t, domain.HealthHealthy, status)

	status, ok = reg.statusOf("billing")
	require.True(t, ok)
	assert.Equal(t, domain.HealthUnhealthy, status)

	_, ok = reg.statusOf("parked")
	assert.False(t, ok, "inactive services must not be probed")
}

func TestTryCycleSkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	srv := probeTarget(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
	})
	reg := newFakeRegistry(activeService("svc", srv.URL))
	checker := New(reg, slog.Default(), WithProbeTimeout(5*time.Second))

	require.True(t, checker.tryCycle(context.Background()))

	// The first cycle is blocked on the probe, so ticks must be dropped.
	assert.Eventually(t, func() bool { return checker.running.Load() }, time.Second, 5*time.Millisecond)
	assert.False(t, checker.tryCycle(context.Background()))

	close(release)
	assert.Eventually(t, func() bool { return !checker.running.Load() }, time.Second, 5*time.Millisecond)
}
