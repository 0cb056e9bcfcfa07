package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fabfab/convo-rag/internal/archive"
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ingest"
	"github.com/fabfab/convo-rag/internal/rag"
	"github.com/fabfab/convo-rag/internal/search"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.app.Health(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type ingestMessage struct {
	AuthorName string     `json:"author_name"`
	AuthorType string     `json:"author_type"`
	Text       string     `json:"text"`
	Timestamp  *time.Time `json:"timestamp"`
}

type ingestRequestBody struct {
	ScenarioTitle     *string         `json:"scenario_title"`
	OriginalTitle     *string         `json:"original_title"`
	URL               *string         `json:"url"`
	Messages          []ingestMessage `json:"messages"`
	PartialEmbeddings bool            `json:"partial_embeddings"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body ingestRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.Validationf("decode request: %v", err))
		return
	}

	messages := make([]ingest.InputMessage, len(body.Messages))
	for i, m := range body.Messages {
		author, err := domain.NewAuthorInfo(m.AuthorName, domain.AuthorType(m.AuthorType))
		if err != nil {
			writeError(w, err)
			return
		}
		messages[i] = ingest.InputMessage{Author: author, Text: m.Text, Timestamp: m.Timestamp}
	}

	resp, err := s.app.Ingest.Ingest(r.Context(), ingest.Request{
		ScenarioTitle:     body.ScenarioTitle,
		OriginalTitle:     body.OriginalTitle,
		URL:               body.URL,
		Messages:          messages,
		PartialEmbeddings: body.PartialEmbeddings,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

type searchRequestBody struct {
	Query       string   `json:"query"`
	TopK        int      `json:"top_k"`
	MinScore    *float64 `json:"min_score"`
	AuthorName  *string  `json:"author_name"`
	AuthorType  *string  `json:"author_type"`
	CacheBypass bool     `json:"cache_bypass"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.Validationf("decode request: %v", err))
		return
	}

	filters := search.Filters{AuthorName: body.AuthorName}
	if body.MinScore != nil {
		score, err := domain.NewRelevanceScore(*body.MinScore)
		if err != nil {
			writeError(w, err)
			return
		}
		filters.MinScore = &score
	}
	if body.AuthorType != nil {
		t := domain.AuthorType(*body.AuthorType)
		filters.AuthorType = &t
	}

	resp, err := s.app.Search.Search(r.Context(), search.Request{
		Query:       body.Query,
		TopK:        body.TopK,
		Filters:     filters,
		CacheBypass: body.CacheBypass,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSearchQuery serves GET /search?q=...&top_k=5, the query-string form
// of search used by simple clients and spec.md §6's seed scenario S1.
func (s *Server) handleSearchQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := search.Request{
		Query: q.Get("q"),
		TopK:  queryInt(r, "top_k", 5),
	}
	if raw := q.Get("min_score"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			score, err := domain.NewRelevanceScore(v)
			if err != nil {
				writeError(w, err)
				return
			}
			req.Filters.MinScore = &score
		}
	}
	if raw := q.Get("author_name"); raw != "" {
		req.Filters.AuthorName = &raw
	}

	resp, err := s.app.Search.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 20)

	conversations, err := s.app.Conversations.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conv, err := s.app.Conversations.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if conv == nil {
		writeError(w, domain.NotFoundf("conversation %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	deleted, err := s.app.Conversations.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, domain.NotFoundf("conversation %d not found", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type askRequestBody struct {
	Query           string  `json:"query"`
	TopK            int     `json:"top_k"`
	MinScore        float64 `json:"min_score"`
	MaxContextChars int     `json:"max_context_chars"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	ConversationID  *int64  `json:"conversation_id"`
}

func askParams(body askRequestBody) rag.Params {
	return rag.Params{
		TopK:            body.TopK,
		MinScore:        domain.RelevanceScore(body.MinScore),
		MaxContextChars: body.MaxContextChars,
		Temperature:     body.Temperature,
		MaxTokens:       body.MaxTokens,
		ConversationID:  body.ConversationID,
	}
}

func (s *Server) handleRAGAsk(w http.ResponseWriter, r *http.Request) {
	var body askRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.Validationf("decode request: %v", err))
		return
	}

	answer, err := s.app.RAG.Ask(r.Context(), rag.Request{Query: body.Query, Params: askParams(body)})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleRAGAskStream streams text deltas as Server-Sent Events, with a
// final "answer" event carrying the fully assembled rag.Answer.
func (s *Server) handleRAGAskStream(w http.ResponseWriter, r *http.Request) {
	var body askRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.Validationf("decode request: %v", err))
		return
	}

	deltas, err := s.app.RAG.AskStream(r.Context(), rag.Request{Query: body.Query, Params: askParams(body)})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)

	for delta := range deltas {
		if delta.Err != nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", jsonString(map[string]string{"error": delta.Err.Error()}))
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if delta.Done {
			fmt.Fprintf(w, "event: answer\ndata: %s\n\n", delta.Text)
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		fmt.Fprintf(w, "event: delta\ndata: %s\n\n", jsonString(map[string]string{"text": delta.Text}))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, domain.Validationf("parse form: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.Validationf("read file: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, domain.Wrap(domain.KindInternal, "read upload", err))
		return
	}

	req, err := archive.DocumentToIngestRequest(header.Filename, data, time.Now())
	if err != nil {
		writeError(w, domain.Validationf("%v", err))
		return
	}

	resp, err := s.app.Ingest.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.Validationf("invalid id %q", raw)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func jsonString(v any) string {
	encoded, _ := json.Marshal(v)
	return string(encoded)
}
