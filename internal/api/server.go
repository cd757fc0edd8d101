// Package api exposes the gateway over HTTP.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mhr-212/talk-to-your-data/internal/analytics"
	"github.com/mhr-212/talk-to-your-data/internal/config"
	"github.com/mhr-212/talk-to-your-data/internal/domain"
	"github.com/mhr-212/talk-to-your-data/internal/middleware"
	"github.com/mhr-212/talk-to-your-data/internal/resultcache"
	"github.com/mhr-212/talk-to-your-data/internal/schema"
	"github.com/mhr-212/talk-to-your-data/internal/service"
)

// Server bundles the HTTP handlers and their collaborators.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	query    *service.QueryService
	saved    *service.SavedQueryStore
	recorder *analytics.Recorder
	results  *resultcache.Cache
	schemas  *schema.Cache
	readDB   *sql.DB
	writeDB  *sql.DB
	auth     *middleware.Authenticator
}

func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	query *service.QueryService,
	saved *service.SavedQueryStore,
	recorder *analytics.Recorder,
	results *resultcache.Cache,
	schemas *schema.Cache,
	readDB, writeDB *sql.DB,
	auth *middleware.Authenticator,
) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger.With("component", "api"),
		query:    query,
		saved:    saved,
		recorder: recorder,
		results:  results,
		schemas:  schemas,
		readDB:   readDB,
		writeDB:  writeDB,
		auth:     auth,
	}
}

// Router builds the chi router with the full middleware stack and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID", "X-Role"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimiter(middleware.RateLimit{
		PerSecond: s.cfg.RateLimitRPS,
		Burst:     s.cfg.RateLimitBurst,
	}))

	// The query endpoint carries its own tighter budget: each request may
	// reach the model provider, so it cannot share the surface-wide limit.
	queryLimit := middleware.RateLimiter(middleware.RateLimit{
		PerSecond: middleware.PerMinute(s.cfg.QueryRateLimitRPM),
		Burst:     s.cfg.QueryRateLimitBurst,
	})

	// Unauthenticated surface.
	r.Get("/v1/health", s.handleHealth)
	r.Post("/auth/token", s.handleMintToken)

	// Everything else needs a principal.
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.With(queryLimit).Post("/v1/query", s.handleQuery)
		r.Post("/v1/query/export", s.handleExport)

		r.Route("/v1/saved-queries", func(r chi.Router) {
			r.Get("/", s.handleSavedList)
			r.Post("/", s.handleSavedCreate)
			r.Get("/search", s.handleSavedSearch)
			r.Get("/{id}", s.handleSavedGet)
			r.Delete("/{id}", s.handleSavedDelete)
			r.Post("/{id}/run", s.handleSavedRun)
		})

		r.Get("/v1/analytics/dashboard", s.handleDashboard)
		r.Get("/v1/analytics/slowest", s.handleSlowest)
		r.Get("/v1/cache/stats", s.handleCacheStats)

		// Admin-only surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Get("/v1/logs", s.handleLogs)
			r.Post("/v1/cache/clear", s.handleCacheClear)
			r.Post("/v1/upload", s.handleUpload)
		})
	})

	return r
}
