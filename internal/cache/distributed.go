package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/ports"
)

// Distributed is the Redis-backed Cache adapter (C6). Runtime failures of
// the backend are treated as misses, never surfaced as errors, per
// spec.md §4.6/§7 (KindCache never escapes a Cache method).
type Distributed struct {
	client *redis.Client
	log    *zap.SugaredLogger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewDistributed connects to addr. Per spec.md §4.6's fallback policy, the
// caller (factory.go) is responsible for falling back to the in-process
// variant when this returns an error.
func NewDistributed(ctx context.Context, addr, password string, db int, log *zap.SugaredLogger) (*Distributed, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &Distributed{client: client, log: log}, nil
}

func (d *Distributed) Close() error { return d.client.Close() }

func (d *Distributed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := d.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		d.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		d.logFailure("get", err)
		d.misses.Add(1)
		return nil, false, nil
	}
	d.hits.Add(1)
	return val, true, nil
}

func (d *Distributed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := d.client.Set(ctx, key, value, ttl).Err(); err != nil {
		d.logFailure("set", err)
	}
	return nil
}

func (d *Distributed) Delete(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Del(ctx, key).Result()
	if err != nil {
		d.logFailure("delete", err)
		return false, nil
	}
	return n > 0, nil
}

// DeleteMatching uses server-side key scanning (SCAN) to avoid blocking the
// server the way KEYS would on a large keyspace.
func (d *Distributed) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := d.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			d.logFailure("scan", err)
			return count, nil
		}
		if len(keys) > 0 {
			n, err := d.client.Del(ctx, keys...).Result()
			if err != nil {
				d.logFailure("delete matching", err)
			} else {
				count += int(n)
				d.evictions.Add(n)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}

func (d *Distributed) Clear(ctx context.Context) error {
	if err := d.client.FlushDB(ctx).Err(); err != nil {
		d.logFailure("clear", err)
	}
	return nil
}

func (d *Distributed) Stats() ports.CacheStats {
	size := 0
	if n, err := d.client.DBSize(context.Background()).Result(); err == nil {
		size = int(n)
	}
	return ports.CacheStats{
		Hits:      d.hits.Load(),
		Misses:    d.misses.Load(),
		Size:      size,
		Evictions: d.evictions.Load(),
	}
}

func (d *Distributed) logFailure(op string, err error) {
	if d.log != nil {
		d.log.Warnw("distributed cache failure, treating as miss", "op", op, "error", err)
	}
}
