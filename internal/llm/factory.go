package llm

import (
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ports"
)

// Config mirrors spec.md §6's llm.* configuration keys.
type Config struct {
	Provider    string // "local", "remote_a", "remote_b"
	Model       string
	Host        string // local provider endpoint (Ollama-compatible)
	Endpoint    string // remote provider endpoint
	APIKey      string
}

func NewFromConfig(cfg Config) (ports.LLMProvider, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocalProvider(cfg.Host, cfg.Model), nil
	case "remote_a", "remote_b":
		return NewRemoteProvider(RemoteConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
		}), nil
	default:
		return nil, domain.Validationf("unknown llm provider %q", cfg.Provider)
	}
}
