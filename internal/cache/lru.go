package cache

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fabfab/convo-rag/internal/ports"
)

type entry struct {
	value      []byte
	expiresAt  time.Time // zero means no expiry
	lastAccess time.Time
}

// LRU is the in-process Cache adapter (C6): bounded by MaxSize entries,
// per-entry TTL, counters for hits/misses/evictions, serializable get/set/
// delete via an internal mutex. Grounded on the hashicorp/golang-lru usage
// pattern in the retrieval pack (dshills-gocontext-mcp's searcher cache).
type LRU struct {
	mu    sync.Mutex
	cache *lru.Cache[string, *entry]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewLRU constructs an in-process LRU cache bounded at maxSize entries.
func NewLRU(maxSize int) (*LRU, error) {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	l := &LRU{}
	c, err := lru.NewWithEvict[string, *entry](maxSize, func(key string, value *entry) {
		l.evictions.Add(1)
	})
	if err != nil {
		return nil, err
	}
	l.cache = c
	return l, nil
}

func (l *LRU) Get(ctx context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.cache.Get(key)
	if !ok {
		l.misses.Add(1)
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		l.cache.Remove(key)
		l.misses.Add(1)
		return nil, false, nil
	}

	e.lastAccess = time.Now()
	l.hits.Add(1)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (l *LRU) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	l.cache.Add(key, &entry{value: cp, expiresAt: expiresAt, lastAccess: time.Now()})
	return nil
}

func (l *LRU) Delete(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Remove(key), nil
}

// DeleteMatching deletes every key matching a "namespace:*"-style glob
// pattern. The in-process cache has no server-side scan, so it walks its
// own key list.
func (l *LRU) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, key := range l.cache.Keys() {
		matched, _ := filepath.Match(pattern, key)
		if matched {
			l.cache.Remove(key)
			count++
		}
	}
	return count, nil
}

func (l *LRU) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Purge()
	return nil
}

func (l *LRU) Stats() ports.CacheStats {
	l.mu.Lock()
	size := l.cache.Len()
	l.mu.Unlock()

	return ports.CacheStats{
		Hits:      l.hits.Load(),
		Misses:    l.misses.Load(),
		Size:      size,
		Evictions: l.evictions.Load(),
	}
}
