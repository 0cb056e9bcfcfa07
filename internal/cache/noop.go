package cache

import (
	"context"
	"time"

	"github.com/fabfab/convo-rag/internal/ports"
)

// NoOp is the Cache adapter used when cache.enabled=false: every read is a
// miss and every write is a no-op, so callers always recompute.
type NoOp struct{}

func (NoOp) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (NoOp) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error { return nil }
func (NoOp) Delete(ctx context.Context, key string) (bool, error)              { return false, nil }
func (NoOp) DeleteMatching(ctx context.Context, pattern string) (int, error)   { return 0, nil }
func (NoOp) Clear(ctx context.Context) error                                  { return nil }
func (NoOp) Stats() ports.CacheStats                                          { return ports.CacheStats{} }
