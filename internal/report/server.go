package report

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/voter"
)

// Server exposes comparison results over HTTP for downstream dashboards.
type Server struct {
	store      *Store
	categories []voter.Category
}

func NewServer(store *Store, categories []voter.Category) *Server {
	return &Server{store: store, categories: categories}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Get("/assignments", s.handleAssignments)
		r.Get("/status", s.handleStatus)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.categories)
}

func (s *Server) handleAssignments(w http.ResponseWriter, r *http.Request) {
	q := Query{Category: r.URL.Query().Get("category")}

	if raw := r.URL.Query().Get("mismatch"); raw != "" {
		m, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "mismatch must be true or false")
			return
		}
		q.Mismatch = &m
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		q.Limit = n
	}

	assignments, err := s.store.Assignments(r.Context(), q)
	if err != nil {
		zap.L().Error("assignment query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if assignments == nil {
		assignments = []Assignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.Summaries(r.Context())
	if err != nil {
		zap.L().Error("summary query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if summaries == nil {
		summaries = []CategorySummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
