package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/navigator/internal/lib/alerts"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSetAndGet(t *testing.T) {
	c := New()

	require.NoError(t, c.Set("key-1", payload{Name: "hotspots", Count: 3}, time.Minute, "riskfeed"))

	var result payload
	found, err := c.Get("key-1", &result)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hotspots", result.Name)
	assert.Equal(t, 3, result.Count)

	found, err = c.Get("missing", &result)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStaleness(t *testing.T) {
	c := New()

	require.NoError(t, c.Set("key-1", payload{Name: "x"}, 10*time.Millisecond, "riskfeed"))
	assert.False(t, c.IsStale("key-1"))
	assert.False(t, c.IsVeryStale("key-1"))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, c.IsStale("key-1"))

	var result payload
	found, err := c.Get("key-1", &result)
	require.NoError(t, err)
	assert.False(t, found, "Stale entries are not served by Get")

	// Stale but within 2x TTL: metadata access still works
	entry, exists, err := c.GetWithMetadata("key-1", &result)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "riskfeed", entry.Source)
	assert.Equal(t, "x", result.Name)

	time.Sleep(10 * time.Millisecond)
	assert.True(t, c.IsVeryStale("key-1"))

	assert.True(t, c.IsStale("missing"))
	assert.True(t, c.IsVeryStale("missing"))
}

func TestCleanupStale(t *testing.T) {
	c := New()

	require.NoError(t, c.Set("fresh", payload{}, time.Minute, "riskfeed"))
	require.NoError(t, c.Set("stale", payload{}, time.Nanosecond, "riskfeed"))
	time.Sleep(time.Millisecond)

	assert.Equal(t, 1, c.CleanupStale())
	assert.Equal(t, []string{"fresh"}, c.Keys())

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.FreshEntries)
	assert.Equal(t, 0, stats.StaleEntries)
}

func TestDeleteAndClear(t *testing.T) {
	c := New()

	require.NoError(t, c.Set("a", payload{}, time.Minute, "riskfeed"))
	require.NoError(t, c.Set("b", payload{}, time.Minute, "narration"))

	c.Delete("a")
	assert.True(t, c.IsStale("a"))
	assert.False(t, c.IsStale("b"))

	c.Clear()
	assert.Empty(t, c.Keys())
}

func TestNarrationCache_TypedRoundTrip(t *testing.T) {
	nc := NewNarrationCache(New())

	narration := alerts.EnhancedNarration{
		ID:          "alert-1",
		Text:        "Heads up, a theft hotspot is about 300 meters ahead.",
		Urgency:     alerts.UrgencyCaution,
		ProcessedAt: time.Now().UTC().Truncate(time.Second),
	}

	assert.False(t, nc.IsNarrationCached("hash-1"))

	require.NoError(t, nc.SetNarration("hash-1", narration, time.Minute))
	assert.True(t, nc.IsNarrationCached("hash-1"))

	got, found, err := nc.GetNarration("hash-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, narration, got)

	_, found, err = nc.GetNarration("hash-2")
	require.NoError(t, err)
	assert.False(t, found)
}
