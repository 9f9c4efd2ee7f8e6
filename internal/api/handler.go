package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github-stars-crawler/internal/model"
)

// Store is the slice of the database layer the read API needs.
type Store interface {
	TopRepositories(ctx context.Context, limit int) ([]model.Repository, error)
	GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error)
	StarHistory(ctx context.Context, repoID string) ([]model.StarSnapshot, error)
}

// Handler is the container for API dependencies.
type Handler struct {
	db     Store
	logger *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(db Store, logger *slog.Logger) http.Handler {
	h := &Handler{
		db:     db,
		logger: logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// API Routes
	r.Get("/health", h.healthCheck)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/repos/top", h.getTopRepositories)
		r.Get("/repos/{owner}/{name}/stars", h.getStarHistory)
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getTopRepositories returns the most-starred crawled repositories.
// GET /v1/repos/top?limit=N
func (h *Handler) getTopRepositories(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "10" // Default limit
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		respondWithError(w, http.StatusBadRequest, "Invalid 'limit' parameter. Must be an integer between 1 and 100.")
		return
	}

	repos, err := h.db.TopRepositories(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to get top repositories", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, repos)
}

// getStarHistory returns the daily star snapshots for one repository.
// GET /v1/repos/{owner}/{name}/stars
func (h *Handler) getStarHistory(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	name := chi.URLParam(r, "name")

	repo, err := h.db.GetRepositoryByFullName(r.Context(), owner+"/"+name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		h.logger.Error("Failed to get repository", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	history, err := h.db.StarHistory(r.Context(), repo.RepoID)
	if err != nil {
		h.logger.Error("Failed to get star history", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, history)
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
