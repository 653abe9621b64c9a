// Package api provides the REST API of the mining workbench.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fidde/oxminer/internal/workbench"
	"github.com/fidde/oxminer/pkg/models"
	"github.com/fidde/oxminer/web"
)

// RunReader is the read side of the run history.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, sessionKey string) ([]*models.RunRecord, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// Deps are the components the server exposes. Metrics and Static are
// optional.
type Deps struct {
	Workbenches *workbench.Manager
	Runs        RunReader
	Logger      *slog.Logger
	Metrics     http.Handler
	Static      *web.StaticFileSystem
}

// Server is the REST API server.
type Server struct {
	cfg         Config
	workbenches *workbench.Manager
	runs        RunReader
	logger      *slog.Logger
	router      *chi.Mux
	server      *http.Server
}

// PaginationParams contains pagination parameters from query string.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps a paginated response with metadata.
type PaginatedResponse struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// parsePaginationParams extracts pagination parameters from request.
// Defaults: limit=100, offset=0, max_limit=1000
func parsePaginationParams(r *http.Request) PaginationParams {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return PaginationParams{Limit: limit, Offset: offset}
}

// paginateSlice applies pagination to a slice.
func paginateSlice[T any](items []T, params PaginationParams) PaginatedResponse {
	total := len(items)
	start := params.Offset
	if start >= total {
		return PaginatedResponse{
			Data:   []T{},
			Total:  total,
			Limit:  params.Limit,
			Offset: params.Offset,
		}
	}
	end := min(start+params.Limit, total)

	return PaginatedResponse{
		Data:    items[start:end],
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: end < total,
	}
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}

	s := &Server{
		cfg:         cfg,
		workbenches: deps.Workbenches,
		runs:        deps.Runs,
		logger:      logger,
		router:      chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))

	if deps.Metrics != nil {
		s.router.Handle("/metrics", deps.Metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		r.Route("/workbenches", func(r chi.Router) {
			r.Get("/", s.listWorkbenches)
			r.Post("/", s.createWorkbench)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getWorkbench)
				r.Delete("/", s.deleteWorkbench)

				r.Post("/upload", s.uploadLog)
				r.Post("/event-types", s.confirmEventTypes)
				r.Post("/tables", s.loadTables)
				r.Post("/search-plans", s.loadSearchPlans)

				r.Put("/cursor", s.setCursor)
				r.Get("/patterns", s.getPatterns)
				r.Put("/patterns", s.updatePatterns)
				r.Post("/patterns/reset", s.resetPatterns)
				r.Post("/custom-patterns", s.confirmCustomPattern)

				r.Get("/options", s.getOptions)
				r.Put("/options", s.setOptions)
				r.Post("/search", s.startModelSearch)
				r.Post("/search-rules", s.startRuleSearch)

				r.Put("/model-view", s.setModelView)
				r.Get("/graph", s.getGraph)
				r.Post("/graph/edges", s.graphEdges)
				r.Get("/rules", s.getRules)
				r.Get("/rules/download", s.downloadRules)
			})
		})

		r.Get("/runs", s.listRuns)
		r.Get("/runs/{runID}", s.getRun)
	})

	if deps.Static != nil {
		fileServer := http.FileServer(deps.Static)
		s.router.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			if deps.Static.Exists(r.URL.Path) {
				fileServer.ServeHTTP(w, r)
				return
			}
			// SPA routing
			r.URL.Path = "/"
			fileServer.ServeHTTP(w, r)
		})
	}

	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.router,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
