package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/convo-rag/internal/ports"
)

func TestRemoteProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"42"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{Endpoint: srv.URL, APIKey: "test-key", Model: "gpt"})
	result, err := p.Generate(context.Background(), []ports.Message{{Role: "user", Content: "what is the answer"}}, ports.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "42", result.Text)
	assert.Equal(t, 3, result.Usage.PromptTokens)
}

func TestRemoteProvider_Generate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{Endpoint: srv.URL, Model: "gpt"})
	result, err := p.Generate(context.Background(), nil, ports.GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "", result.Text)
}

func TestRemoteProvider_Generate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "bad request")
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{Endpoint: srv.URL, Model: "gpt"})
	_, err := p.Generate(context.Background(), nil, ports.GenerateParams{})
	require.Error(t, err)
}

func TestRemoteProvider_GenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"he\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"llo\"},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{Endpoint: srv.URL, Model: "gpt"})
	ch, err := p.GenerateStream(context.Background(), []ports.Message{{Role: "user", Content: "hi"}}, ports.GenerateParams{})
	require.NoError(t, err)

	var full string
	for delta := range ch {
		require.NoError(t, delta.Err)
		full += delta.Text
	}
	assert.Equal(t, "hello", full)
}
