// Package kv abstracts the key-value collaborator shared by the gateway
// cache and the rate limiter. Implementations must be safe for concurrent
// use.
package kv

import (
	"context"
	"time"
)

//go:generate mockgen -source=kv.go -destination=mocks/kv_mock.go -package=mocks

// Store is the key-value contract. Get reports presence explicitly so a
// missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
