package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/foaggregator/fo-aggregator/internal/errs"
)

// l2 is the distributed cache tier, grounded on the pack's
// redisclient.Client shape (redis.ParseURL + redis.NewClient), with
// values encoded compactly via msgpack rather than JSON.
type l2 struct {
	client *redis.Client
}

// newL2 parses url and constructs a client; nil is a valid disabled L2
// (cache outage degrades to L1+store per §4.2 "Failure").
func newL2(url string) (*l2, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &l2{client: redis.NewClient(opt)}, nil
}

func (l *l2) ping(ctx context.Context) error {
	if l == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return l.client.Ping(ctx).Err()
}

func (l *l2) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if l == nil {
		return false, nil
	}
	raw, err := l.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errWrap(err)
	}
	if err := msgpack.Unmarshal(raw, dest); err != nil {
		return false, errWrap(err)
	}
	return true, nil
}

func (l *l2) set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if l == nil {
		return nil
	}
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	if err := l.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return errWrap(err)
	}
	return nil
}

// invalidatePattern scans for keys matching pattern and deletes them.
// Best-effort: a scan error is not reported; the keys collected before
// it are still deleted, matching
// the "pattern invalidation is best-effort" contract in §4.2.
func (l *l2) invalidatePattern(ctx context.Context, pattern string) {
	if l == nil {
		return
	}
	iter := l.client.Scan(ctx, 0, pattern, 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		l.client.Del(ctx, keys...)
	}
}

func (l *l2) close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}

func errWrap(err error) error {
	if err == nil {
		return nil
	}
	return &cacheErr{err}
}

type cacheErr struct{ inner error }

func (e *cacheErr) Error() string { return errs.ErrCacheUnavailable.Error() + ": " + e.inner.Error() }
func (e *cacheErr) Unwrap() error { return errs.ErrCacheUnavailable }
