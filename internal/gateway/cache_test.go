package gateway

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"civigate/internal/domain"
	"civigate/internal/platform/kv"
	"civigate/internal/platform/kv/mocks"
	dErrors "civigate/pkg/domain-errors"
)

// fakeResolver counts origin lookups so tests can assert read-through
// behavior.
type fakeResolver struct {
	services map[string]domain.RegisteredService
	lookups  int
}

func (f *fakeResolver) GetByName(_ context.Context, name string) (domain.RegisteredService, error) {
	f.lookups++
	svc, ok := f.services[name]
	if !ok {
		return domain.RegisteredService{}, dErrors.New(dErrors.CodeNotFound, "not registered")
	}
	return svc, nil
}

func newTestCache(t *testing.T, resolver *fakeResolver) (*Cache, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemory()
	cache, err := NewCache(resolver, store, slog.Default(), 300*time.Second)
	require.NoError(t, err)
	return cache, store
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeResolver{services: map[string]domain.RegisteredService{
		"permits": {ID: "id-1", Name: "permits", BaseURL: "http://permits:8080"},
	}}
	cache, _ := newTestCache(t, resolver)

	svc, outcome, err := cache.Resolve(ctx, "permits")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	assert.Equal(t, "id-1", svc.ID)

	svc, outcome, err = cache.Resolve(ctx, "permits")
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, "id-1", svc.ID)
	assert.Equal(t, 1, resolver.lookups, "hit must not touch the origin")
}

func TestCacheDoesNotCacheNegativeResults(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeResolver{services: map[string]domain.RegisteredService{}}
	cache, _ := newTestCache(t, resolver)

	_, outcome, err := cache.Resolve(ctx, "ghost")
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))
	assert.Equal(t, OutcomeNegative, outcome)

	// A service registered after a miss must resolve immediately.
	resolver.services["ghost"] = domain.RegisteredService{ID: "id-2", Name: "ghost"}
	svc, outcome, err := cache.Resolve(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	assert.Equal(t, "id-2", svc.ID)
}

func TestCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeResolver{services: map[string]domain.RegisteredService{
		"permits": {ID: "id-1", Name: "permits"},
		"waste":   {ID: "id-2", Name: "waste"},
	}}
	cache, _ := newTestCache(t, resolver)

	for _, name := range []string{"permits", "waste"} {
		_, _, err := cache.Resolve(ctx, name)
		require.NoError(t, err)
	}

	require.NoError(t, cache.Invalidate(ctx, "permits"))

	_, outcome, err := cache.Resolve(ctx, "permits")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome, "invalidated entry must re-query the origin")

	_, outcome, err = cache.Resolve(ctx, "waste")
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome, "other entries must survive a single invalidation")

	require.NoError(t, cache.InvalidateAll(ctx))
	_, outcome, err = cache.Resolve(ctx, "waste")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestCacheEntryExpires(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeResolver{services: map[string]domain.RegisteredService{
		"permits": {ID: "id-1", Name: "permits"},
	}}
	cache, store := newTestCache(t, resolver)

	_, _, err := cache.Resolve(ctx, "permits")
	require.NoError(t, err)

	store.SetClock(func() time.Time { return time.Now().Add(301 * time.Second) })

	_, outcome, err := cache.Resolve(ctx, "permits")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
}

func TestCacheStoreFailureFallsBackToRegistry(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Get(gomock.Any(), cacheKeyPrefix+"permits").
		Return("", false, errors.New("connection reset")).Times(2)
	store.EXPECT().Set(gomock.Any(), cacheKeyPrefix+"permits", gomock.Any(), gomock.Any()).
		Return(errors.New("connection reset")).Times(2)

	resolver := &fakeResolver{services: map[string]domain.RegisteredService{
		"permits": {ID: "id-1", Name: "permits"},
	}}
	cache, err := NewCache(resolver, store, slog.Default(), 300*time.Second)
	require.NoError(t, err)

	for range 2 {
		svc, outcome, err := cache.Resolve(ctx, "permits")
		require.NoError(t, err, "cache store failures must not break resolution")
		assert.Equal(t, OutcomeMiss, outcome)
		assert.Equal(t, "id-1", svc.ID)
	}
	assert.Equal(t, 2, resolver.lookups)
}
