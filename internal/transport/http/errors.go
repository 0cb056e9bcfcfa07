package http

import (
	"encoding/json"
	"net/http"

	"github.com/fabfab/convo-rag/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps a domain.ErrorKind to the HTTP status prescribed by
// spec.md §7. Only the domain-level message is exposed; the underlying
// cause (which may carry driver errors, DSNs, or other internal detail) is
// never serialized to the client, per spec.md §7's "no stack traces, no raw
// exception text, no secrets" rule.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeJSON(w, statusForKind(kind), map[string]any{
		"error": domain.MessageOf(err),
	})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStorage:
		return http.StatusServiceUnavailable
	case domain.KindEmbeddingDimension, domain.KindEmbedding, domain.KindLLM:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
