package composition

import (
	"context"
	"time"
)

// ComponentStatus reports one dependency's health check outcome.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// HealthReport is the aggregate result of Health.
type HealthReport struct {
	Healthy    bool              `json:"healthy"`
	Components []ComponentStatus `json:"components"`
}

// Health exercises each adapter cheaply: a storage round-trip ping, a
// cache set/get round-trip, and the embedding provider's declared
// dimension. It never calls the LLM provider, which has no cheap no-op
// check and would incur real cost per invocation.
func (a *App) Health(ctx context.Context) HealthReport {
	components := []ComponentStatus{
		a.checkStorage(ctx),
		a.checkCache(ctx),
		a.checkEmbedding(),
		a.checkLLM(),
	}

	healthy := true
	for _, c := range components {
		if !c.Healthy {
			healthy = false
		}
	}
	return HealthReport{Healthy: healthy, Components: components}
}

func (a *App) checkStorage(ctx context.Context) ComponentStatus {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.pool.Ping(pingCtx); err != nil {
		return ComponentStatus{Name: "storage", Healthy: false, Detail: err.Error()}
	}
	return ComponentStatus{Name: "storage", Healthy: true}
}

func (a *App) checkCache(ctx context.Context) ComponentStatus {
	const key = "health:check"
	if err := a.Cache.Set(ctx, key, []byte("1"), time.Minute); err != nil {
		return ComponentStatus{Name: "cache", Healthy: false, Detail: err.Error()}
	}
	if _, _, err := a.Cache.Get(ctx, key); err != nil {
		return ComponentStatus{Name: "cache", Healthy: false, Detail: err.Error()}
	}
	return ComponentStatus{Name: "cache", Healthy: true}
}

func (a *App) checkEmbedding() ComponentStatus {
	if a.Embedder.Dimension() <= 0 {
		return ComponentStatus{Name: "embedding", Healthy: false, Detail: "non-positive dimension"}
	}
	return ComponentStatus{Name: "embedding", Healthy: true}
}

// checkLLM validates the LLM provider's configuration without issuing a
// call, since the provider has no cheap no-op request and a real call would
// incur cost on every health probe (spec.md §4.10 (c)).
func (a *App) checkLLM() ComponentStatus {
	if a.Config.LLM.Model == "" && a.Config.LLM.Provider != "local" {
		return ComponentStatus{Name: "llm", Healthy: false, Detail: "llm.model is not configured"}
	}
	return ComponentStatus{Name: "llm", Healthy: true}
}
