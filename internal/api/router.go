package api

import (
	"context"
	"net/http"

	"threatwatch/internal/config"
	"threatwatch/internal/ranking"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the ranking engine methods used by the API.
// This interface enables mocking for tests without a backing store.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// GetPage returns one window of the ranked view
	GetPage(ctx context.Context, limit, offset int) ranking.Page
	// GetEntity returns the fused status of a single entity
	GetEntity(ctx context.Context, id string) (ranking.Entity, bool)
	// IndexSize returns the current ranking index cardinality
	IndexSize(ctx context.Context) int64
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the ranking engine (required)
	Engine EngineInterface

	// MaxPageSize clamps the limit query parameter before it reaches the
	// engine. Zero means the default from config.
	MaxPageSize int

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, uses the defaults from config.
	CORSOrigins []string

	// Hub is an optional WebSocket hub; when set, /ws is mounted.
	Hub *Hub

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine      EngineInterface
	hub         *Hub
	maxPageSize int
}

// NewRouter constructs the HTTP router with all middleware and routes.
// No listeners are opened, so it is safe to use in tests with
// httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting before CORS to reject early and save CPU
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = config.DefaultServer().CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	maxPage := cfg.MaxPageSize
	if maxPage <= 0 {
		maxPage = config.DefaultRanking().MaxPageSize
	}

	h := &routerHandlers{
		engine:      cfg.Engine,
		hub:         cfg.Hub,
		maxPageSize: maxPage,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/players", h.handleGetPlayers)
		r.Get("/players/{id}", h.handleGetPlayer)
		r.Get("/stats", h.handleGetStats)
	})

	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
