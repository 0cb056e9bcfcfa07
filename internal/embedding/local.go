package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/domain"
)

// localProvider calls an in-process-adjacent model server (Ollama) over its
// embeddings HTTP API. It is "local" in the sense of spec.md §4.4/§6: no
// API key, no rate limiting, no retry — the model is assumed co-located and
// reliable. Adapted from the teacher's internal/embeddings/ollama.go.
type localProvider struct {
	host      string
	model     string
	dimension int
	client    *http.Client
	log       *zap.SugaredLogger
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewLocalProvider constructs an EmbeddingProvider backed by Ollama's
// /api/embeddings endpoint.
func NewLocalProvider(host, model string, dimension int, timeout time.Duration, log *zap.SugaredLogger) *localProvider {
	return &localProvider{
		host:      strings.TrimRight(host, "/"),
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

func (p *localProvider) Dimension() int { return p.dimension }

func (p *localProvider) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return domain.Embedding{}, err
	}
	return vectors[0], nil
}

// EmbedBatch preserves input order. The local model is invoked sequentially
// per unique text (no native batch endpoint), on the caller's goroutine;
// each call blocks on network I/O without holding any lock, and texts are
// not embedded in parallel. Identical texts within the batch are
// embedded once and replicated across duplicate positions (spec.md §4.4's
// at-most-once batch de-duplication).
func (p *localProvider) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	out := make([]domain.Embedding, len(texts))
	seen := make(map[string]domain.Embedding, len(texts))
	url := fmt.Sprintf("%s/api/embeddings", p.host)

	for i, text := range texts {
		if emb, ok := seen[text]; ok {
			out[i] = emb
			continue
		}

		emb, err := p.embedOne(ctx, url, text)
		if err != nil {
			return nil, err
		}
		seen[text] = emb
		out[i] = emb

		if p.log != nil {
			p.log.Debugw("embedded text", "index", i, "chars", len(text))
		}
	}

	return out, nil
}

func (p *localProvider) embedOne(ctx context.Context, url, text string) (domain.Embedding, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return domain.Embedding{}, domain.Wrap(domain.KindEmbedding, "marshal ollama embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return domain.Embedding{}, domain.Wrap(domain.KindEmbedding, "create ollama embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Embedding{}, domain.Wrap(domain.KindEmbedding, "call ollama embeddings API", err)
	}

	var payload ollamaEmbedResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
	resp.Body.Close()
	if decodeErr != nil {
		return domain.Embedding{}, domain.Wrap(domain.KindEmbedding, "decode ollama embedding response", decodeErr)
	}

	vec := make([]float32, len(payload.Embedding))
	for j, v := range payload.Embedding {
		vec[j] = float32(v)
	}
	if p.dimension > 0 && len(vec) < p.dimension {
		vec = domain.WithPadding(vec, p.dimension)
	}

	emb, err := domain.NewEmbedding(vec, p.dimension)
	if err != nil {
		return domain.Embedding{}, err
	}
	return emb, nil
}
