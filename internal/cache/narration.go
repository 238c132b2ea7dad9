package cache

import (
	"fmt"
	"time"

	"github.com/saferoute/navigator/internal/lib/alerts"
)

// NarrationCache adapts Cache to the typed alerts.NarrationCache
// interface. Entries round-trip through JSON, so the typed accessors
// unmarshal into a concrete struct rather than handing back interface{}.
type NarrationCache struct {
	cache *Cache
}

// NewNarrationCache wraps a Cache for narration storage.
func NewNarrationCache(cache *Cache) *NarrationCache {
	return &NarrationCache{cache: cache}
}

func narrationKey(contentHash string) string {
	return fmt.Sprintf("narration:%s", contentHash)
}

// SetNarration caches a narration by content hash.
func (n *NarrationCache) SetNarration(contentHash string, narration alerts.EnhancedNarration, ttl time.Duration) error {
	return n.cache.Set(narrationKey(contentHash), narration, ttl, "narration")
}

// GetNarration retrieves a cached narration by content hash.
func (n *NarrationCache) GetNarration(contentHash string) (alerts.EnhancedNarration, bool, error) {
	var narration alerts.EnhancedNarration
	found, err := n.cache.Get(narrationKey(contentHash), &narration)
	return narration, found, err
}

// IsNarrationCached reports whether a fresh narration exists.
func (n *NarrationCache) IsNarrationCached(contentHash string) bool {
	return !n.cache.IsStale(narrationKey(contentHash))
}
