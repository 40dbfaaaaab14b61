// Package config loads runtime configuration for the aggregation pipeline
// from a .env file and the process environment, with typed accessors and
// documented defaults for every recognized key.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SlowConsumerPolicy selects how the broadcast hub treats a subscriber
// whose bounded queue is full.
type SlowConsumerPolicy string

const (
	DropSubscriber SlowConsumerPolicy = "drop_subscriber"
	DropOldest     SlowConsumerPolicy = "drop_oldest"
)

// CacheTTLs holds the TTL matrix for the cache tier (C2).
type CacheTTLs struct {
	Latest           time.Duration
	SeriesRecent     time.Duration
	SeriesHistorical time.Duration
	Static           time.Duration
}

// PoolSizes holds worker-pool counts for the long-lived roles (§5).
type PoolSizes struct {
	Consumers   int
	Aggregators int
	Backfillers int
}

// BufferSizes holds bounded-channel lengths for backpressure points.
type BufferSizes struct {
	Channel    int
	Subscriber int
}

// Timeouts holds per-call I/O timeouts (§5 "Suspension/blocking points").
type Timeouts struct {
	Read    time.Duration
	Write   time.Duration
	History time.Duration
}

// Config is the fully resolved runtime configuration.
type Config struct {
	LogLevel string
	Pretty   bool
	Port     int
	DataDir  string

	PubSubURL    string
	PubSubPrefix string
	RedisURL     string
	StorePath    string
	HistoryAPIURL string

	ArchiveS3Bucket       string
	ArchiveS3Endpoint     string
	ArchiveRetentionDays  int
	ArchiveIntervalHours  int

	// StrikeGap is the per-symbol strike step used for moneyness
	// classification, e.g. NIFTY -> 50.
	StrikeGap map[string]int

	GraceMs                time.Duration
	BackfillWindowHours    int
	BackfillGapThresholdSec int

	CacheTTL CacheTTLs
	Pool     PoolSizes
	Buffers  BufferSizes
	Timeouts Timeouts

	SlowConsumerPolicy        SlowConsumerPolicy
	EnableSubscriptionEvents bool
}

// Load reads .env (if present) then the environment, applying defaults for
// anything unset. Mirrors the teacher's load-then-override idiom.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Pretty:   getEnvBool("LOG_PRETTY", false),
		Port:     getEnvInt("PORT", 8080),
		DataDir:  getEnv("DATA_DIR", "./data"),

		PubSubURL:     getEnv("PUBSUB_URL", "redis://localhost:6379/0"),
		PubSubPrefix:  getEnv("PUBSUB_PREFIX", "ticker"),
		RedisURL:      getEnv("CACHE_REDIS_URL", "redis://localhost:6379/1"),
		StorePath:     getEnv("STORE_PATH", "./data/fo.db"),
		HistoryAPIURL: getEnv("HISTORY_API_URL", "http://localhost:9090"),

		ArchiveS3Bucket:      getEnv("ARCHIVE_S3_BUCKET", ""),
		ArchiveS3Endpoint:    getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveRetentionDays: getEnvInt("ARCHIVE_RETENTION_DAYS", 90),
		ArchiveIntervalHours: getEnvInt("ARCHIVE_INTERVAL_HOURS", 24),

		StrikeGap: parseStrikeGap(getEnv("STRIKE_GAP", "NIFTY=50,BANKNIFTY=100,FINNIFTY=50")),

		GraceMs:                 time.Duration(getEnvInt("GRACE_MS", 15000)) * time.Millisecond,
		BackfillWindowHours:     getEnvInt("BACKFILL_WINDOW_HOURS", 2),
		BackfillGapThresholdSec: getEnvInt("BACKFILL_GAP_THRESHOLD_SEC", 120),

		CacheTTL: CacheTTLs{
			Latest:           time.Duration(getEnvInt("CACHE_TTL_LATEST_SEC", 5)) * time.Second,
			SeriesRecent:     time.Duration(getEnvInt("CACHE_TTL_SERIES_RECENT_SEC", 5)) * time.Second,
			SeriesHistorical: time.Duration(getEnvInt("CACHE_TTL_SERIES_HISTORICAL_SEC", 60)) * time.Second,
			Static:           time.Duration(getEnvInt("CACHE_TTL_STATIC_SEC", 60)) * time.Second,
		},
		Pool: PoolSizes{
			Consumers:   getEnvInt("POOL_CONSUMERS", 3),
			Aggregators: getEnvInt("POOL_AGGREGATORS", 4),
			Backfillers: getEnvInt("POOL_BACKFILLERS", 4),
		},
		Buffers: BufferSizes{
			Channel:    getEnvInt("BUFFER_CHANNEL", 10000),
			Subscriber: getEnvInt("BUFFER_SUBSCRIBER", 256),
		},
		Timeouts: Timeouts{
			Read:    time.Duration(getEnvInt("TIMEOUT_READ_MS", 5000)) * time.Millisecond,
			Write:   time.Duration(getEnvInt("TIMEOUT_WRITE_MS", 10000)) * time.Millisecond,
			History: time.Duration(getEnvInt("TIMEOUT_HISTORY_MS", 30000)) * time.Millisecond,
		},
		SlowConsumerPolicy:       SlowConsumerPolicy(getEnv("SLOW_CONSUMER_POLICY", string(DropSubscriber))),
		EnableSubscriptionEvents: getEnvBool("ENABLE_SUBSCRIPTION_EVENTS", true),
	}

	return cfg, nil
}

func parseStrikeGap(raw string) map[string]int {
	out := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		gap, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(parts[0]))] = gap
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
