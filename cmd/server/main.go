package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civigate/internal/events"
	"civigate/internal/gateway"
	"civigate/internal/health"
	"civigate/internal/identity"
	"civigate/internal/platform/config"
	"civigate/internal/platform/httpserver"
	"civigate/internal/platform/kv"
	"civigate/internal/platform/logger"
	"civigate/internal/platform/middleware"
	platformredis "civigate/internal/platform/redis"
	"civigate/internal/ratelimit"
	"civigate/internal/registry"
	registryhandler "civigate/internal/registry/handler"
	"civigate/pkg/platform/httputil"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := newRegistryStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	kvStore, closeKV, err := newKVStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeKV()

	sink, err := newEventSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	publisher := events.NewPublisher(sink, log)
	defer publisher.Close()

	regService, err := registry.New(store, publisher, log)
	if err != nil {
		return err
	}

	cache, err := gateway.NewCache(regService, kvStore, log, cfg.CacheTTL)
	if err != nil {
		return err
	}
	proxy, err := gateway.NewProxy(cache, log, cfg.ProxyTimeout, cfg.MaxRedirects)
	if err != nil {
		return err
	}
	limiter, err := ratelimit.New(kvStore, log, int64(cfg.RateLimit), cfg.RateWindow)
	if err != nil {
		return err
	}

	checker := health.New(regService, log,
		health.WithInterval(cfg.HealthInterval),
		health.WithProbeTimeout(cfg.ProbeTimeout),
	)
	go func() {
		if err := checker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("health checker stopped", "error", err)
		}
	}()

	decoder := identity.NewJWTDecoder(cfg.JWTSigningKey)
	registryHandler := registryhandler.New(regService, checker, cache, log, cfg.AdminRole)
	router := newRouter(log, decoder, limiter, registryHandler, gateway.NewHandler(proxy))

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// newRouter assembles the middleware chain and mounts every surface. The
// rate limiter sits in the global chain, after identity resolution so
// authenticated callers are keyed by subject, and before any route
// dispatch: the admin API consumes the same budget as proxied traffic.
func newRouter(
	log *slog.Logger,
	decoder middleware.IdentityDecoder,
	limiter *ratelimit.Limiter,
	registryHandler *registryhandler.Handler,
	gatewayHandler *gateway.Handler,
) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.CorrelationID)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Identity(decoder, log))
	router.Use(limiter.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteSuccess(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	registryHandler.Routes(router)
	gatewayHandler.Routes(router)
	return router
}

// newRegistryStore selects PostgreSQL when a DSN is configured, in-memory
// otherwise.
func newRegistryStore(ctx context.Context, cfg config.Config) (registry.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		return registry.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := registry.NewPostgres(db)
	if err := store.Init(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

// newKVStore selects Redis when configured, in-memory otherwise.
func newKVStore(cfg config.Config, log *slog.Logger) (kv.Store, func(), error) {
	client, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("redis not configured, using in-memory key-value store")
		return kv.NewMemory(), func() {}, nil
	}
	return kv.NewRedis(client.Client), func() { client.Close() }, nil
}

// newEventSink selects Kafka when brokers are configured, in-memory
// otherwise.
func newEventSink(ctx context.Context, cfg config.Config, log *slog.Logger) (events.Sink, error) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("kafka not configured, keeping platform events in memory")
		return events.NewMemorySink(), nil
	}
	return events.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.EventTopic)
}
