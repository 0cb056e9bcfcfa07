package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ports"
)

// remoteProvider talks to an OpenAI-compatible chat completions endpoint,
// serving both the remote_a and remote_b configuration variants of
// spec.md §6 (they differ only in endpoint/model, not in wire shape).
type remoteProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

type RemoteConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

func NewRemoteProvider(cfg RemoteConfig) *remoteProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &remoteProvider{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []ports.Message `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *remoteProvider) Generate(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (ports.GenerateResult, error) {
	reqBody, err := json.Marshal(chatCompletionRequest{
		Model:       p.model,
		Messages:    prompt,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "marshal chat completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "create chat completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "call chat completion API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return ports.GenerateResult{}, domain.NewError(domain.KindLLM, fmt.Sprintf("chat completion API error: %s", string(data)), nil)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "decode chat completion response", err)
	}
	if len(parsed.Choices) == 0 {
		return ports.GenerateResult{}, nil
	}

	return ports.GenerateResult{
		Text: parsed.Choices[0].Message.Content,
		Usage: ports.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

// streamChunk models one OpenAI-compatible SSE "data: {...}" payload.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *remoteProvider) GenerateStream(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (<-chan ports.TextDelta, error) {
	reqBody, err := json.Marshal(chatCompletionRequest{
		Model:       p.model,
		Messages:    prompt,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindLLM, "marshal chat completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, domain.Wrap(domain.KindLLM, "create chat completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindLLM, "call chat completion API", err)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, domain.NewError(domain.KindLLM, fmt.Sprintf("chat completion API error: %s", string(data)), nil)
	}

	out := make(chan ports.TextDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- ports.TextDelta{Done: true, Err: ctx.Err()}
				return
			default:
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				out <- ports.TextDelta{Done: true}
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				out <- ports.TextDelta{Done: true, Err: domain.Wrap(domain.KindLLM, "decode stream chunk", err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			done := chunk.Choices[0].FinishReason != nil
			out <- ports.TextDelta{Text: chunk.Choices[0].Delta.Content, Done: done}
			if done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- ports.TextDelta{Done: true, Err: domain.Wrap(domain.KindLLM, "read stream", err)}
		}
	}()

	return out, nil
}
