package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestL1EvictsOldestUnderEntryBudget verifies the bounded-memory
// property (P9): once maxEntries is exceeded, the least recently used
// entry is evicted rather than the cache growing unbounded.
func TestL1EvictsOldestUnderEntryBudget(t *testing.T) {
	c := newL1(3, 1<<20)

	c.set("a", []byte("1"), time.Minute)
	c.set("b", []byte("2"), time.Minute)
	c.set("c", []byte("3"), time.Minute)

	// touch "a" so it's most-recently-used, leaving "b" as the LRU victim.
	_, _ = c.get("a")
	c.set("d", []byte("4"), time.Minute)

	require.LessOrEqual(t, len(c.entries), 3)
	_, foundB := c.get("b")
	require.False(t, foundB, "least recently used entry should have been evicted")
	_, foundA := c.get("a")
	require.True(t, foundA, "recently touched entry should survive eviction")
}

// TestL1EvictsUnderByteBudget verifies the cache also bounds total
// bytes held, independent of entry count (P9).
func TestL1EvictsUnderByteBudget(t *testing.T) {
	c := newL1(1000, 50)

	for i := 0; i < 20; i++ {
		c.set(fmt.Sprintf("key-%d", i), make([]byte, 10), time.Minute)
	}

	require.LessOrEqual(t, c.curBytes, 50)
}

// TestL1ExpiresOnTTL verifies a stale entry is treated as a miss and
// removed rather than served past its TTL.
func TestL1ExpiresOnTTL(t *testing.T) {
	c := newL1(10, 1<<20)
	c.set("k", []byte("v"), -time.Second)

	_, found := c.get("k")
	require.False(t, found)
	require.Equal(t, 0, len(c.entries))
}
