package api

import (
	"log"
	"net/http"
	"time"

	"threatwatch/internal/config"

	"github.com/go-chi/chi/v5"
)

// Server is the HTTP API server with WebSocket push for dashboards.
//
// Background workers do NOT start until Start() is called, so the server
// can be constructed in tests without goroutines or open listeners. For
// testing HTTP endpoints alone, use NewRouter() directly.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	broadcast   time.Duration
	pageSize    int
}

// NewServer creates a new API server with default production configuration.
func NewServer(engine EngineInterface, cfg config.AppConfig) *Server {
	s := &Server{
		engine:      engine,
		hub:         NewHub(cfg.Server.CORSOrigins),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		broadcast:   5 * time.Second,
		pageSize:    25,
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		MaxPageSize: cfg.Ranking.MaxPageSize,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Hub:         s.hub,
	})

	return s
}

// Start runs the hub and blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.hub.StartBroadcastLoop(s.engine, s.pageSize, s.broadcast)

	log.Printf("🌐 API server listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Stop releases background resources.
func (s *Server) Stop() {
	s.rateLimiter.Stop()
}

// Router exposes the underlying router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
