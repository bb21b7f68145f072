package imputation

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const dimensionsKey = "dimensions"

// CachedRegistry wraps a Registry with TTL-based caching.
// This avoids hitting the database on every imputation check.
type CachedRegistry struct {
	inner Registry
	cache *gocache.Cache
}

// NewCachedRegistry wraps a registry with caching.
// ttl is how long dimensions and values are cached before re-fetching.
func NewCachedRegistry(inner Registry, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// ActiveDimensions returns the active dimensions, using the cache if available.
func (r *CachedRegistry) ActiveDimensions(ctx context.Context) ([]Dimension, error) {
	if v, ok := r.cache.Get(dimensionsKey); ok {
		return v.([]Dimension), nil
	}
	dims, err := r.inner.ActiveDimensions(ctx)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(dimensionsKey, dims)
	return dims, nil
}

// ActiveValues returns the active values of a dimension, using the cache if available.
func (r *CachedRegistry) ActiveValues(ctx context.Context, dimensionCode string) ([]Value, error) {
	key := "values:" + dimensionCode
	if v, ok := r.cache.Get(key); ok {
		return v.([]Value), nil
	}
	values, err := r.inner.ActiveValues(ctx, dimensionCode)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, values)
	return values, nil
}

// Invalidate drops the cached values of one dimension and the dimension list.
// Call this when a dimension or its values change.
func (r *CachedRegistry) Invalidate(dimensionCode string) {
	r.cache.Delete("values:" + dimensionCode)
	r.cache.Delete(dimensionsKey)
}

// InvalidateAll clears the entire cache.
func (r *CachedRegistry) InvalidateAll() {
	r.cache.Flush()
}
