package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/domain"
)

const (
	remoteMaxBatchSize = 2048
	remoteMaxAttempts  = 3
)

// remoteProvider calls a hosted, OpenAI-compatible embeddings endpoint. It
// implements spec.md §4.4's batching, retry, and dimension-adaptation
// policy in full.
type remoteProvider struct {
	endpoint    string
	apiKey      string
	model       string
	dimension   int
	client      *http.Client
	concurrency int
	log         *zap.SugaredLogger
}

// RemoteConfig configures the remote embedding provider.
type RemoteConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Dimension   int
	Timeout     time.Duration
	Concurrency int // bounded sub-batch parallelism, default 4 (spec.md §5)
}

func NewRemoteProvider(cfg RemoteConfig, log *zap.SugaredLogger) *remoteProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &remoteProvider{
		endpoint:    strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		client:      &http.Client{Timeout: timeout},
		concurrency: concurrency,
		log:         log,
	}
}

func (p *remoteProvider) Dimension() int { return p.dimension }

func (p *remoteProvider) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return domain.Embedding{}, err
	}
	return vecs[0], nil
}

// EmbedBatch de-duplicates identical texts within the batch (at-most-once,
// spec.md §4.4), splits the remainder into sub-batches of at most
// remoteMaxBatchSize, issues them with bounded concurrency, and preserves
// positional correspondence with the input regardless of internal ordering.
func (p *remoteProvider) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	firstIndexOf := make(map[string]int, len(texts))
	var unique []string
	for i, t := range texts {
		if _, seen := firstIndexOf[t]; !seen {
			firstIndexOf[t] = len(unique)
			unique = append(unique, t)
		}
	}

	uniqueResults := make([]domain.Embedding, len(unique))
	batches := splitIntoBatches(unique, remoteMaxBatchSize)

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	errs := make([]error, len(batches))

	offset := 0
	offsets := make([]int, len(batches))
	for i, b := range batches {
		offsets[i] = offset
		offset += len(b)
	}

	for i, batch := range batches {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, batch []string, base int) {
			defer wg.Done()
			defer func() { <-sem }()

			vecs, err := p.embedWithRetry(ctx, batch)
			if err != nil {
				errs[i] = err
				return
			}
			for j, v := range vecs {
				uniqueResults[base+j] = v
			}
		}(i, batch, offsets[i])
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := make([]domain.Embedding, len(texts))
	for i, t := range texts {
		out[i] = uniqueResults[firstIndexOf[t]]
	}
	return out, nil
}

func splitIntoBatches(texts []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}

// embedWithRetry issues one sub-batch request, retrying transport and
// rate-limit failures for at most remoteMaxAttempts attempts in total, with exponential
// backoff and jitter starting at 1s, doubling, capped at 10s. Authentication
// failures and 4xx validation errors are not retried.
func (p *remoteProvider) embedWithRetry(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0
	bo.Reset()

	var attempt int
	var lastErr error

	for attempt = 1; attempt <= remoteMaxAttempts; attempt++ {
		vecs, err := p.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}

		var apiErr *apiError
		if isAPIError(err, &apiErr) && !apiErr.retryable() {
			return nil, domain.Wrap(domain.KindEmbedding, "remote embedding request failed", err)
		}

		lastErr = err
		if attempt == remoteMaxAttempts {
			break
		}

		wait := bo.NextBackOff()
		if p.log != nil {
			p.log.Warnw("retrying remote embedding call", "attempt", attempt, "wait", wait, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, domain.Wrap(domain.KindEmbedding, "remote embedding call cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}

	return nil, domain.Wrap(domain.KindEmbedding, fmt.Sprintf("remote embedding failed after %d attempts", remoteMaxAttempts), lastErr)
}

type apiError struct {
	statusCode int
	body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("remote API returned status %d: %s", e.statusCode, e.body)
}

// retryable reports whether this failure should be retried: transport and
// rate-limit (429) signals yes, authentication (401/403) and other 4xx no.
func (e *apiError) retryable() bool {
	if e.statusCode == http.StatusTooManyRequests {
		return true
	}
	if e.statusCode == http.StatusUnauthorized || e.statusCode == http.StatusForbidden {
		return false
	}
	if e.statusCode >= 400 && e.statusCode < 500 {
		return false
	}
	return true
}

func isAPIError(err error, target **apiError) bool {
	ae, ok := err.(*apiError)
	if ok {
		*target = ae
	}
	return ok
}

type remoteEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type remoteEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *remoteProvider) embedOnce(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	reqBody, err := json.Marshal(remoteEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal remote embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create remote embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call remote embedding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &apiError{statusCode: resp.StatusCode, body: string(body)}
	}

	var parsed remoteEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode remote embedding response: %w", err)
	}

	out := make([]domain.Embedding, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		vec := d.Embedding
		if p.dimension > 0 && len(vec) < p.dimension {
			vec = domain.WithPadding(vec, p.dimension)
		}
		emb, err := domain.NewEmbedding(vec, p.dimension)
		if err != nil {
			return nil, err
		}
		out[d.Index] = emb
	}
	return out, nil
}
