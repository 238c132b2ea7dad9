package alerts

import (
	"context"
	"time"

	"github.com/dpup/prefab/logging"
)

// CachedNarrationEnhancer wraps a NarrationEnhancer with content-based
// caching so re-approaching the same hotspot does not re-trigger the
// language model.
type CachedNarrationEnhancer struct {
	enhancer NarrationEnhancer
	cache    NarrationCache
	hasher   *ContentHasher
	ttl      time.Duration
}

// NewCachedNarrationEnhancer creates an enhancer with content-based
// caching. Narrations are cached for 24 hours.
func NewCachedNarrationEnhancer(enhancer NarrationEnhancer, cache NarrationCache) *CachedNarrationEnhancer {
	return &CachedNarrationEnhancer{
		enhancer: enhancer,
		cache:    cache,
		hasher:   NewContentHasher(),
		ttl:      24 * time.Hour,
	}
}

// EnhanceAlert checks the cache, then calls the underlying enhancer and
// caches the result.
func (c *CachedNarrationEnhancer) EnhanceAlert(ctx context.Context, raw RawAlert) (EnhancedNarration, error) {
	contentHash := c.hasher.HashRawAlert(raw)

	if cached, found, err := c.cache.GetNarration(contentHash); err == nil && found {
		logging.Debugw(ctx, "Narration cache hit", "content_hash", contentHash[:8])
		return cached, nil
	}

	enhanced, err := c.enhancer.EnhanceAlert(ctx, raw)
	if err != nil {
		return enhanced, err
	}

	if err := c.cache.SetNarration(contentHash, enhanced, c.ttl); err != nil {
		// Caching failure is not fatal; the narration is still usable
		logging.Warnw(ctx, "Failed to cache narration", "error", err)
	}

	return enhanced, nil
}

// HealthCheck delegates to the underlying enhancer.
func (c *CachedNarrationEnhancer) HealthCheck(ctx context.Context) error {
	return c.enhancer.HealthCheck(ctx)
}

// IsAlertCached reports whether the alert would be served from cache.
func (c *CachedNarrationEnhancer) IsAlertCached(raw RawAlert) bool {
	return c.cache.IsNarrationCached(c.hasher.HashRawAlert(raw))
}
