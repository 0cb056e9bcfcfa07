package llm

import (
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

// localProvider is a minimal chat client compatible with Ollama's REST API,
// adapted from the teacher's internal/ollama/client.go into the generalized
// LLMProvider port (adds GenerateStream and token usage accounting).
type localProvider struct {
	host   string
	model  string
	client *http.Client
}

func NewLocalProvider(host, model string) *localProvider {
	return &localProvider{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message            ollamaMessage `json:"message"`
	Error              string        `json:"error"`
	Done               bool          `json:"done"`
	PromptEvalCount    int           `json:"prompt_eval_count"`
	EvalCount          int           `json:"eval_count"`
}

func toOllamaMessages(prompt []ports.Message) []ollamaMessage {
	out := make([]ollamaMessage, len(prompt))
	for i, m := range prompt {
		out[i] = ollamaMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (c *localProvider) Generate(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (ports.GenerateResult, error) {
	if c.host == "" {
		return ports.GenerateResult{}, domain.NewError(domain.KindLLM, "ollama host must be configured", nil)
	}
	if c.model == "" {
		return ports.GenerateResult{}, domain.NewError(domain.KindLLM, "ollama model must be configured", nil)
	}

	payload := ollamaChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(prompt),
		Stream:   false,
		Options:  ollamaOptions{Temperature: params.Temperature, NumPredict: params.MaxTokens},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return ports.GenerateResult{}, domain.NewError(domain.KindLLM, fmt.Sprintf("ollama chat API error: %s", string(data)), nil)
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ports.GenerateResult{}, domain.Wrap(domain.KindLLM, "decode response", err)
	}
	if parsed.Error != "" {
		return ports.GenerateResult{}, domain.NewError(domain.KindLLM, parsed.Error, nil)
	}

	return ports.GenerateResult{
		Text: parsed.Message.Content,
		Usage: ports.TokenUsage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
		},
	}, nil
}

// GenerateStream issues a streaming chat request and relays each decoded
// line as a TextDelta. Ollama streams newline-delimited JSON objects shaped
// like ollamaChatResponse; the final one carries Done=true.
func (c *localProvider) GenerateStream(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (<-chan ports.TextDelta, error) {
	payload := ollamaChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(prompt),
		Stream:   true,
		Options:  ollamaOptions{Temperature: params.Temperature, NumPredict: params.MaxTokens},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.Wrap(domain.KindLLM, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, domain.Wrap(domain.KindLLM, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindLLM, "execute request", err)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, domain.NewError(domain.KindLLM, fmt.Sprintf("ollama chat API error: %s", string(data)), nil)
	}

	out := make(chan ports.TextDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			select {
			case <-ctx.Done():
				out <- ports.TextDelta{Done: true, Err: ctx.Err()}
				return
			default:
			}

			var chunk ollamaChatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if err == io.EOF {
					return
				}
				out <- ports.TextDelta{Done: true, Err: domain.Wrap(domain.KindLLM, "decode stream chunk", err)}
				return
			}
			if chunk.Error != "" {
				out <- ports.TextDelta{Done: true, Err: domain.NewError(domain.KindLLM, chunk.Error, nil)}
				return
			}
			out <- ports.TextDelta{Text: chunk.Message.Content, Done: chunk.Done}
			if chunk.Done {
				return
			}
		}
	}()

	return out, nil
}
