// Package gateway routes inbound citizen traffic to registered backends: a
// read-through cache over the registry, a pure access decision, and the
// forwarding engine.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"civigate/internal/domain"
	"civigate/internal/platform/kv"
	"civigate/pkg/requestcontext"
)

const cacheKeyPrefix = "gateway:service:"

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "civigate_gateway_cache_lookups_total",
	Help: "Service snapshot cache lookups by outcome",
}, []string{"outcome"})

// Outcome reports how a resolution was satisfied.
type Outcome string

const (
	OutcomeHit      Outcome = "hit"
	OutcomeMiss     Outcome = "miss"
	OutcomeNegative Outcome = "negative"
)

// Resolver is the registry lookup the cache reads through to.
type Resolver interface {
	GetByName(ctx context.Context, name string) (domain.RegisteredService, error)
}

// Cache is a read-through snapshot cache over the registry, keyed by service
// name. Misses always re-query the origin: a negative result is never
// cached, so a freshly registered service is routable immediately.
type Cache struct {
	registry Resolver
	store    kv.Store
	logger   *slog.Logger
	ttl      time.Duration
}

// NewCache constructs the gateway cache.
func NewCache(registry Resolver, store kv.Store, logger *slog.Logger, ttl time.Duration) (*Cache, error) {
	if registry == nil {
		return nil, errors.New("registry resolver is required")
	}
	if store == nil {
		return nil, errors.New("kv store is required")
	}
	return &Cache{registry: registry, store: store, logger: logger, ttl: ttl}, nil
}

// Resolve returns the service snapshot for name, reporting whether it came
// from the cache. Cache-store failures degrade to a registry lookup; they
// never fail the resolution.
func (c *Cache) Resolve(ctx context.Context, name string) (domain.RegisteredService, Outcome, error) {
	key := cacheKeyPrefix + name

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache lookup failed, falling back to registry",
			"service", name,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else if found {
		var svc domain.RegisteredService
		if err := json.Unmarshal([]byte(raw), &svc); err == nil {
			cacheLookups.WithLabelValues(string(OutcomeHit)).Inc()
			return svc, OutcomeHit, nil
		}
		// Undecodable entry: drop it and treat as a miss.
		_ = c.store.Delete(ctx, key)
	}

	svc, err := c.registry.GetByName(ctx, name)
	if err != nil {
		cacheLookups.WithLabelValues(string(OutcomeNegative)).Inc()
		return domain.RegisteredService{}, OutcomeNegative, err
	}

	if snapshot, err := json.Marshal(svc); err == nil {
		if err := c.store.Set(ctx, key, string(snapshot), c.ttl); err != nil {
			c.logger.WarnContext(ctx, "failed to cache service snapshot",
				"service", name,
				"error", err,
			)
		}
	}
	cacheLookups.WithLabelValues(string(OutcomeMiss)).Inc()
	return svc, OutcomeMiss, nil
}

// Invalidate drops the cached snapshot for one service. Called after
// administrative mutations so changes propagate before TTL expiry.
func (c *Cache) Invalidate(ctx context.Context, name string) error {
	return c.store.Delete(ctx, cacheKeyPrefix+name)
}

// InvalidateAll drops every cached snapshot.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.store.DeleteByPattern(ctx, cacheKeyPrefix+"*")
}
