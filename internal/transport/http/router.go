// Package http exposes the composition root's orchestrators over a chi
// router, adapted from the teacher's internal/server package: same
// middleware stack and writeJSON/writeError idiom, generalized from a
// single-conversation chat API to the ingest/search/rag/conversations
// surface of spec.md §5.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabfab/convo-rag/internal/composition"
)

// Server wires HTTP handlers to the composition root.
type Server struct {
	app    *composition.App
	router http.Handler
}

// New constructs a Server exposing app's orchestrators.
func New(app *composition.App) *Server {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{app: app, router: mux}

	mux.Get("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Post("/ingest", s.handleIngest)
	mux.Get("/search", s.handleSearchQuery)
	mux.Post("/search", s.handleSearch)
	mux.Get("/conversations", s.handleListConversations)
	mux.Get("/conversations/{id}", s.handleGetConversation)
	mux.Delete("/conversations/{id}", s.handleDeleteConversation)
	mux.Post("/rag/ask", s.handleRAGAsk)
	mux.Post("/rag/ask-stream", s.handleRAGAskStream)
	mux.Post("/documents", s.handleUploadDocument)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
