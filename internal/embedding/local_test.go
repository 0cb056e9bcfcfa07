package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProvider_EmbedBatch_DeduplicatesIdenticalTexts(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "test-model", 3, 5*time.Second, nil)
	out, err := p.EmbedBatch(context.Background(), []string{"hello", "hello", "world"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, out[0].Values(), out[1].Values())
	assert.EqualValues(t, 2, calls.Load())
}

func TestLocalProvider_EmbedBatch_PadsShortVectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "test-model", 4, 5*time.Second, nil)
	out, err := p.Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 4, out.Dimension())
}

func TestLocalProvider_EmbedBatch_PreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var v float64
		switch req.Prompt {
		case "a":
			v = 0.1
		case "b":
			v = 0.2
		case "c":
			v = 0.3
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{v, v, v}})
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "test-model", 3, 5*time.Second, nil)
	out, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.1, out[0].Values()[0], 1e-6)
	assert.InDelta(t, 0.2, out[1].Values()[0], 1e-6)
	assert.InDelta(t, 0.3, out[2].Values()[0], 1e-6)
}

func TestLocalProvider_Dimension(t *testing.T) {
	p := NewLocalProvider("http://unused", "model", 7, time.Second, nil)
	assert.Equal(t, 7, p.Dimension())
}
