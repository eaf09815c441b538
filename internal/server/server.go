// Package server provides the HTTP server exposing the thread event log,
// task store, and turn-engine-backed agent sessions.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/runlace/core/internal/agent"
	"github.com/runlace/core/internal/event"
	"github.com/runlace/core/internal/permission"
	"github.com/runlace/core/internal/provider"
	"github.com/runlace/core/internal/session"
	"github.com/runlace/core/internal/task"
	"github.com/runlace/core/internal/thread"
	"github.com/runlace/core/internal/tool"
	"github.com/runlace/core/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Directory:    "",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Server is the HTTP server fronting a thread store, task store, and the
// turn-engine session manager for a single instance.
type Server struct {
	config      *Config
	router      *chi.Mux
	httpSrv     *http.Server
	appConfig   *types.Config
	providerReg *provider.Registry
	toolReg     *tool.Registry
	bus         *event.Bus
	threadStore *thread.Store
	taskStore   *task.Store
	agentMgr    *session.Manager
}

// New creates a new Server instance. threadStore and taskStore may be nil
// (e.g. in tests that don't exercise the thread/task API). Each store's
// routes are mounted when that store is non-nil; the agent-session routes
// built on top of them are mounted only when both are non-nil.
func New(cfg *Config, appConfig *types.Config, providerReg *provider.Registry, toolReg *tool.Registry, threadStore *thread.Store, taskStore *task.Store) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:      cfg,
		router:      r,
		appConfig:   appConfig,
		providerReg: providerReg,
		toolReg:     toolReg,
		bus:         event.NewBus(),
		threadStore: threadStore,
		taskStore:   taskStore,
	}

	if threadStore != nil && taskStore != nil {
		s.agentMgr = session.NewManager(threadStore, taskStore, providerReg, toolReg, permission.NewChecker(), agent.NewRegistry(), cfg.Directory)
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
