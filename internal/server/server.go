// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/acme/autocert"

	"github.com/urza/Yap/internal/chat"
	"github.com/urza/Yap/internal/fts"
	"github.com/urza/Yap/internal/log"
	"github.com/urza/Yap/internal/observability"
	"github.com/urza/Yap/internal/realtime"
)

// Server is the HTTP host for the chat engine.
type Server struct {
	chat      *chat.Service
	realtime  *realtime.Service
	telemetry *observability.Telemetry
	search    *fts.Index
	debugKey  string
	router    *chi.Mux
	startedAt time.Time

	// HTTP server for graceful shutdown
	httpServer *http.Server

	// HTTPS fields
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

// Config holds server configuration.
type Config struct {
	// ServiceName names the HTTP spans and metrics.
	ServiceName string
	// Telemetry instruments requests when set.
	Telemetry *observability.Telemetry
	// AllowedOrigins for CORS. Empty allows every origin.
	AllowedOrigins []string
	// Search answers message searches. The search route is absent without it.
	Search *fts.Index
	// DebugToken guards /api/v1/debug/logs. The route is absent without it.
	DebugToken string
}

// New creates a Server routing to engine and rt.
func New(engine *chat.Service, rt *realtime.Service, cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "yap"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		chat:      engine,
		realtime:  rt,
		telemetry: cfg.Telemetry,
		search:    cfg.Search,
		debugKey:  cfg.DebugToken,
		router:    chi.NewRouter(),
		startedAt: time.Now(),
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg Config) {
	// CORS middleware for browser-based clients
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)
	if s.telemetry != nil {
		s.router.Use(observability.HTTPMiddleware(s.telemetry, cfg.ServiceName))
	}

	s.router.With(middleware.SetHeader("Content-Type", "application/json")).Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Use(s.sessionMiddleware)
		r.Get("/rooms", s.handleListRooms)
		r.Get("/users", s.handleListUsers)
		r.Get("/channels/{id}/messages", s.handleChannelMessages)
		if s.search != nil {
			r.Get("/channels/{id}/search", s.handleChannelSearch)
		}
		if s.debugKey != "" {
			r.With(s.requireDebugToken).Get("/debug/logs", s.handleDebugLogs)
		}
	})

	if s.realtime != nil {
		s.router.Get("/realtime/v1/websocket", s.realtime.HandleWebSocket)
	}
}

// Router returns the root handler.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string             `json:"status"`
	Uptime   string             `json:"uptime"`
	Chat     chat.Stats         `json:"chat"`
	Realtime *realtime.HubStats `json:"realtime,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "healthy",
		Uptime: time.Since(s.startedAt).Truncate(time.Second).String(),
		Chat:   s.chat.Stats(),
	}
	if s.realtime != nil {
		stats := s.realtime.Stats()
		resp.Realtime = &stats
	}
	json.NewEncoder(w).Encode(resp)
}

// ListenAndServe serves plain HTTP on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS serves HTTPS on cfg.Addr with Let's Encrypt certificates
// and redirects plain HTTP on cfg.HTTPAddr to it.
func (s *Server) ListenAndServeTLS(cfg HTTPSConfig) error {
	if err := ValidateDomain(cfg.Domain); err != nil {
		return err
	}
	s.autocertMgr = NewAutocertManager(cfg.Domain, cfg.CertDir)

	s.httpRedirect = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.autocertMgr.HTTPHandler(HTTPRedirectHandler(cfg.Domain)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http redirect server failed", "addr", cfg.HTTPAddr, "error", err.Error())
		}
	}()

	s.httpsServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		TLSConfig:         NewTLSConfig(s.autocertMgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpsServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the HTTP server(s).
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for name, srv := range map[string]*http.Server{
		"HTTPS server":         s.httpsServer,
		"HTTP redirect server": s.httpRedirect,
		"HTTP server":          s.httpServer,
	} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

