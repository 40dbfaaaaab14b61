package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// Config controls both cache tiers. TTLs are not configured here: every
// GetOrFetch/SetMany call supplies its own ttl, since the right value
// depends on which query operation is calling (§4.2 TTL matrix) — see
// internal/query's use of config.CacheTTLs.
type Config struct {
	RedisURL     string
	L1MaxEntries int
	L1MaxBytes   int
}

// Cache is the C2 facade: L1 always present, L2 optional. GetOrFetch
// coalesces concurrent misses for the same key (singleflight, per
// glossary) and writes through both tiers after a successful fetch.
type Cache struct {
	l1  *l1
	l2  *l2
	cfg Config
	log zerolog.Logger

	inflightMu sync.Mutex
	inflight   map[string]*call
}

type call struct {
	done  chan struct{}
	value []byte
	err   error
}

// New builds the cache facade. A blank RedisURL disables L2 entirely —
// the facade then behaves as an L1-only cache with no functional
// difference to callers (§4.2 "Failure").
func New(cfg Config, log zerolog.Logger) (*Cache, error) {
	l2Tier, err := newL2(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("L2 cache unavailable, degrading to L1 only")
		l2Tier = nil
	}
	return &Cache{
		l1:       newL1(cfg.L1MaxEntries, cfg.L1MaxBytes),
		l2:       l2Tier,
		cfg:      cfg,
		log:      log.With().Str("component", "cache").Logger(),
		inflight: make(map[string]*call),
	}, nil
}

// Fetcher produces the authoritative value for a cache miss.
type Fetcher func(ctx context.Context) ([]byte, error)

// GetOrFetch returns the cached bytes for key if present in L1 or L2,
// otherwise calls fetcher exactly once per concurrently-missing key and
// populates both tiers with the result under ttl.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetcher Fetcher) ([]byte, bool, error) {
	if v, ok := c.l1.get(key); ok {
		return v, true, nil
	}

	if c.l2 != nil {
		var raw []byte
		found, err := c.l2.get(ctx, key, &raw)
		if err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("L2 get failed, degrading to fetcher")
		} else if found {
			c.l1.set(key, raw, ttl)
			return raw, true, nil
		}
	}

	value, err := c.coalescedFetch(ctx, key, fetcher)
	if err != nil {
		return nil, false, err
	}

	c.l1.set(key, value, ttl)
	if c.l2 != nil {
		if err := c.l2.set(ctx, key, value, ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("L2 set failed")
		}
	}
	return value, false, nil
}

// coalescedFetch ensures only one fetcher call is in flight per key at
// any instant; concurrent callers for the same key share the result.
func (c *Cache) coalescedFetch(ctx context.Context, key string, fetcher Fetcher) ([]byte, error) {
	c.inflightMu.Lock()
	if existing, ok := c.inflight[key]; ok {
		c.inflightMu.Unlock()
		<-existing.done
		return existing.value, existing.err
	}

	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.inflightMu.Unlock()

	cl.value, cl.err = fetcher(ctx)

	c.inflightMu.Lock()
	delete(c.inflight, key)
	c.inflightMu.Unlock()
	close(cl.done)

	return cl.value, cl.err
}

// InvalidatePattern drops every matching key from both tiers. Best
// effort; stale reads are bounded by TTL per §4.2 "Invalidation".
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) {
	n := c.l1.invalidatePattern(pattern)
	c.l2.invalidatePattern(ctx, redisPattern(pattern))
	c.log.Debug().Str("pattern", pattern).Int("l1_removed", n).Msg("pattern invalidated")
}

// redisPattern converts a filepath.Match-style pattern (only `*` used
// here) into a redis SCAN MATCH pattern — the two glob dialects agree on
// a bare `*` wildcard, which is all this cache ever constructs.
func redisPattern(p string) string { return p }

// SetMany writes multiple key/value pairs with the same TTL.
func (c *Cache) SetMany(ctx context.Context, values map[string][]byte, ttl time.Duration) {
	for k, v := range values {
		c.l1.set(k, v, ttl)
		if c.l2 != nil {
			if err := c.l2.set(ctx, k, v, ttl); err != nil {
				c.log.Warn().Err(err).Str("key", k).Msg("L2 SetMany failed")
			}
		}
	}
}

// GetMany returns whichever of keys are present (L1 first, then L2).
func (c *Cache) GetMany(ctx context.Context, keys []string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := c.l1.get(k); ok {
			out[k] = v
			continue
		}
		if c.l2 != nil {
			var raw []byte
			if found, err := c.l2.get(ctx, k, &raw); err == nil && found {
				out[k] = raw
			}
		}
	}
	return out
}

// Stats reports L1 hit/miss counters for the health endpoint.
func (c *Cache) Stats() Stats { return c.l1.stats() }

// Close releases the L2 client, if any.
func (c *Cache) Close() error {
	if c.l2 != nil {
		return c.l2.close()
	}
	return nil
}

// Key helpers — canonical namespacing per spec.md §4.2.

// LatestKey builds the cache key for a latest-snapshot query.
func LatestKey(symbol string, tf domain.Timeframe, indicator string, expiryHash string) string {
	return fmt.Sprintf("cache:fo:v1:latest:%s:%s:%s:%s", symbol, tf, indicator, expiryHash)
}

// SeriesKey builds the cache key for a moneyness-series query.
func SeriesKey(symbol string, tf domain.Timeframe, indicator string, expiryHash, timeHash string) string {
	return fmt.Sprintf("cache:fo:v1:series:%s:%s:%s:%s:%s", symbol, tf, indicator, expiryHash, timeHash)
}

// StaticKey builds the cache key for static lookups (expiries list,
// instrument metadata).
func StaticKey(kind, symbol string) string {
	return fmt.Sprintf("cache:fo:v1:static:%s:%s", kind, symbol)
}

// InvalidationPatterns returns the two patterns the aggregator issues
// after every successful bucket flush for (symbol, expiry, timeframe),
// per spec.md §4.2 "Invalidation".
func InvalidationPatterns(symbol string, tf domain.Timeframe, expiry string) []string {
	return []string{
		fmt.Sprintf("cache:fo:v1:latest:%s:%s:*", symbol, tf),
		fmt.Sprintf("cache:fo:v1:series:%s:%s:*%s*", symbol, tf, expiry),
	}
}
