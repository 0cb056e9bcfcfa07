package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/ports"
)

// Config mirrors spec.md §6's cache.* configuration keys.
type Config struct {
	Enabled  bool
	Backend  string // "memory" or "distributed"
	Addr     string
	Password string
	DB       int
	MaxSize  int
}

// NewFromConfig builds the configured cache backend. If the distributed
// backend cannot be reached at initialization, it falls back to the
// in-process variant and logs a warning, per spec.md §4.6.
func NewFromConfig(ctx context.Context, cfg Config, log *zap.SugaredLogger) (ports.Cache, error) {
	if cfg.Backend == "distributed" {
		d, err := NewDistributed(ctx, cfg.Addr, cfg.Password, cfg.DB, log)
		if err == nil {
			return d, nil
		}
		if log != nil {
			log.Warnw("distributed cache unreachable at startup, falling back to in-process cache", "error", err)
		}
	}
	return NewLRU(cfg.MaxSize)
}
