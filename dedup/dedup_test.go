package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_FirstCallFalseSubsequentTrue(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Seen("k1", time.Minute), "first observation must not be reported as a duplicate")
	assert.True(t, c.Seen("k1", time.Minute), "second observation within the window must be a duplicate")
}

func TestSeen_ExpiresAfterWindow(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Seen("k1", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.Seen("k1", 10*time.Millisecond), "an entry older than window must be treated as unseen")
}

func TestSeen_DistinctKeysDoNotCollide(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Seen("a", time.Minute))
	assert.False(t, c.Seen("b", time.Minute))
	assert.True(t, c.Seen("a", time.Minute))
	assert.True(t, c.Seen("b", time.Minute))
}

func TestBackfill_PreventsSubsequentPersistenceRoundTrip(t *testing.T) {
	c := NewCache()
	c.Backfill("k1")
	assert.True(t, c.Seen("k1", time.Minute), "a backfilled key must read as already seen")
}

func TestTenantKey_DisjointFromBareHash(t *testing.T) {
	hash := "deadbeef"
	tenantKeyA := TenantKey("tenantA", hash)
	tenantKeyB := TenantKey("tenantB", hash)
	assert.NotEqual(t, tenantKeyA, tenantKeyB, "different tenants must not share an executor dedup key")
	assert.NotEqual(t, tenantKeyA, hash)
}

func TestCancelKey_ScopedBySymbol(t *testing.T) {
	assert.NotEqual(t, CancelKey("BTCUSDT"), CancelKey("ETHUSDT"))
	assert.Contains(t, CancelKey("BTCUSDT"), "CANCEL|")
}

func TestSeen_EvictionSweepDropsExpiredEntries(t *testing.T) {
	c := NewCache()
	for i := 0; i < EvictThreshold+10; i++ {
		key := string(rune(i))
		c.Seen(key, time.Nanosecond)
	}
	time.Sleep(time.Millisecond)
	// The opportunistic sweep runs inside the loop as soon as the cache passes
	// EvictThreshold and, with a 1ns window, drops the entries recorded before
	// it; the cache must not grow unboundedly past the threshold.
	c.Seen("trigger", time.Minute)
	assert.LessOrEqual(t, len(c.entries), EvictThreshold+11)
}
