package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civigate/internal/events"
	"civigate/internal/gateway"
	"civigate/internal/health"
	"civigate/internal/identity"
	"civigate/internal/platform/kv"
	"civigate/internal/ratelimit"
	"civigate/internal/registry"
	registryhandler "civigate/internal/registry/handler"
)

func newTestRouter(t *testing.T, limit int64) http.Handler {
	t.Helper()
	log := slog.Default()

	regService, err := registry.New(registry.NewMemoryStore(),
		events.NewPublisher(events.NewMemorySink(), log), log)
	require.NoError(t, err)

	kvStore := kv.NewMemory()
	cache, err := gateway.NewCache(regService, kvStore, log, 300*time.Second)
	require.NoError(t, err)
	proxy, err := gateway.NewProxy(cache, log, 30*time.Second, 5)
	require.NoError(t, err)
	limiter, err := ratelimit.New(kvStore, log, limit, time.Minute)
	require.NoError(t, err)
	checker := health.New(regService, log)

	return newRouter(log,
		identity.NewJWTDecoder("test-key"),
		limiter,
		registryhandler.New(regService, checker, cache, log, "platform-admin"),
		gateway.NewHandler(proxy),
	)
}

// Every inbound request passes the rate limiter before route dispatch, the
// admin API included, not just proxied traffic.
func TestRouterRateLimitsAllRoutes(t *testing.T) {
	router := newTestRouter(t, 2)

	do := func(path string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		r.RemoteAddr = "203.0.113.7:4567"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, r)
		return rec
	}

	rec := do("/registry/services")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	do("/registry/health")

	rec = do("/registry/services")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "admin routes share the global budget")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// A different client still has its own budget.
	r := httptest.NewRequest(http.MethodGet, "/registry/services", nil)
	r.RemoteAddr = "198.51.100.9:4567"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterLiveness(t *testing.T) {
	router := newTestRouter(t, 100)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
