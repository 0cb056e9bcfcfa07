package embedding

import (
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ports"
)

// Config mirrors spec.md §6's embedding.* configuration keys.
type Config struct {
	Provider  string // "local" or "remote"
	Model     string
	Dimension int
	APIKey    string
	Host      string // local provider endpoint (Ollama-compatible)
	Endpoint  string // remote provider endpoint
}

// NewFromConfig selects the embedding adapter named by cfg.Provider.
func NewFromConfig(cfg Config, log *zap.SugaredLogger) (ports.EmbeddingProvider, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalProvider(cfg.Host, cfg.Model, cfg.Dimension, 90*time.Second, log), nil
	case "remote":
		return NewRemoteProvider(RemoteConfig{
			Endpoint:  cfg.Endpoint,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}, log), nil
	default:
		return nil, domain.Validationf("unknown embedding provider %q", cfg.Provider)
	}
}
