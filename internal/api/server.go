// Package api serves searches, the municipality catalog and presets over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/model"
	"github.com/sells-group/editais-cli/internal/pipeline"
	"github.com/sells-group/editais-cli/internal/reference"
	"github.com/sells-group/editais-cli/internal/session"
	"github.com/sells-group/editais-cli/internal/store"
)

// Searcher runs a search for a session.
type Searcher interface {
	Run(ctx context.Context, sess *session.Session, onShard func(pipeline.ShardProgress)) (*model.SearchResult, error)
}

// Options configures the server.
type Options struct {
	AllowedOrigins []string
	MaxSelections  int
	SheetName      string
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	searcher Searcher
	catalog  *reference.Catalog
	store    store.Store
	cache    *session.ResultCache
	opts     Options
}

// NewServer creates a Server. Every request gets its own session; all
// sessions share cache so exports can find earlier results.
func NewServer(searcher Searcher, catalog *reference.Catalog, st store.Store, cache *session.ResultCache, opts Options) *Server {
	if cache == nil {
		cache = session.NewResultCache(session.DefaultCacheEntries, session.DefaultCacheTTL)
	}
	if opts.MaxSelections <= 0 {
		opts.MaxSelections = session.MaxSelections
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{searcher: searcher, catalog: catalog, store: st, cache: cache, opts: opts}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ufs", s.handleUFs)
		r.Get("/municipios", s.handleMunicipios)
		r.Get("/statuses", s.handleStatuses)

		r.Post("/search", s.handleSearch)
		r.Get("/search/{signature}", s.handleCachedResult)
		r.Get("/search/{signature}/export.xlsx", s.handleExport(formatXLSX))
		r.Get("/search/{signature}/export.csv", s.handleExport(formatCSV))

		r.Get("/presets", s.handleListPresets)
		r.Get("/presets/{name}", s.handleGetPreset)
		r.Put("/presets/{name}", s.handlePutPreset)
		r.Delete("/presets/{name}", s.handleDeletePreset)

		r.Get("/runs", s.handleRuns)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Error       string            `json:"error"`
	Suggestions []model.Selection `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var nf *reference.NotFoundError
	if errors.As(err, &nf) {
		for _, m := range nf.Suggestions {
			body.Suggestions = append(body.Suggestions, m.Selection())
		}
	}
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, pipeline.ErrNoSelection),
		errors.Is(err, pipeline.ErrUnknownStatus),
		errors.Is(err, session.ErrSelectionLimit),
		errors.Is(err, reference.ErrMunicipioNotFound):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrPresetNotFound), errors.Is(err, errResultNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type healthBody struct {
	Status     string             `json:"status"`
	Municipios int                `json:"municipios"`
	Cache      session.CacheStats `json:"cache"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{
		Status:     "ok",
		Municipios: s.catalog.Len(),
		Cache:      s.cache.Stats(),
	})
}
