package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var validIndicators = map[string]bool{
	"iv": true, "delta": true, "gamma": true, "theta": true, "vega": true,
	"volume": true, "oi": true,
}

func validIndicator(indicator string) bool { return validIndicators[indicator] }

// roundTo5Min rounds t to the nearest 5-minute boundary for cache-key
// stability (§4.8 "GetMoneynessSeries").
func roundTo5Min(t time.Time) time.Time {
	return t.Round(5 * time.Minute)
}

// seriesTTL picks the cache TTL based on how recent the series window's
// end is: a window ending within the last hour is "recent" and churns
// faster than a fully historical one (§4.2 TTL matrix).
func seriesTTL(to time.Time, recent, historical time.Duration) time.Duration {
	if time.Since(to) < time.Hour {
		return recent
	}
	return historical
}

// expiryToken builds the cache key's expiry segment as the raw,
// sorted, comma-joined expiry dates (or "all" when unfiltered) rather
// than a hash of them. The aggregator's flush-time invalidation pattern
// (cache.InvalidationPatterns) matches on the literal expiry date via
// `*{expiry}*`; a hashed segment could never match that literal, so the
// segment must stay human-readable for pattern invalidation to work.
func expiryToken(expiries []time.Time) string {
	if len(expiries) == 0 {
		return "all"
	}
	dates := make([]string, len(expiries))
	for i, e := range expiries {
		dates[i] = e.Format("2006-01-02")
	}
	sort.Strings(dates)
	return strings.Join(dates, ",")
}

func hashWindow(from, to time.Time) string {
	return fmt.Sprintf("%d-%d", from.Unix(), to.Unix())
}

func floatKey(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
