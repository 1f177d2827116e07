// Package api serves the generation pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signifo/designgen/internal/config"
	"github.com/signifo/designgen/internal/generation"
	"github.com/signifo/designgen/internal/logging"
	"github.com/signifo/designgen/internal/metrics"
	"github.com/signifo/designgen/internal/recovery"
	"github.com/signifo/designgen/internal/runtime/executor"
	log "github.com/sirupsen/logrus"
)

// Generator runs one generation.
type Generator interface {
	Generate(ctx context.Context, prompt generation.Prompt, credential, model string) (*generation.Result, error)
}

// ModelLister lists the models a credential can access.
type ModelLister interface {
	ListModels(ctx context.Context, credential string) ([]executor.Model, error)
}

// Backend is the set of collaborators built from one configuration.
type Backend struct {
	Config    *config.Config
	Generator Generator
	Models    ModelLister
}

// BackendFactory builds a Backend for cfg.
type BackendFactory func(cfg *config.Config) (*Backend, error)

// NewBackend wires the OpenRouter executor and the recovery engine for cfg.
func NewBackend(cfg *config.Config) (*Backend, error) {
	exec, err := executor.NewOpenRouterExecutor(cfg)
	if err != nil {
		return nil, err
	}
	engine := recovery.NewEngine(recovery.WithSections(cfg.Recovery.Sections...))
	return &Backend{
		Config:    cfg,
		Generator: generation.NewOrchestrator(exec, engine),
		Models:    exec,
	}, nil
}

// Server is the HTTP front end. The backend can be swapped at runtime by Reload.
type Server struct {
	backend    atomic.Pointer[Backend]
	factory    BackendFactory
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer builds the router for cfg. A nil factory uses NewBackend.
func NewServer(cfg *config.Config, factory BackendFactory) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("api: configuration is required")
	}
	if factory == nil {
		factory = NewBackend
	}
	backend, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{factory: factory}
	s.backend.Store(backend)

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery())
	s.setupRoutes(engine)
	s.engine = engine
	return s, nil
}

func (s *Server) setupRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := engine.Group("/v1")
	v1.POST("/generate", s.handleGenerate)
	v1.GET("/models", s.handleModels)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Reload rebuilds the backend from cfg and swaps it in. In-flight requests
// finish on the backend they started with.
func (s *Server) Reload(cfg *config.Config) error {
	backend, err := s.factory(cfg)
	if err != nil {
		return fmt.Errorf("api: reload failed: %w", err)
	}
	s.backend.Store(backend)
	log.Info("api: backend reloaded")
	return nil
}

func (s *Server) current() *Backend {
	return s.backend.Load()
}

// Start listens on the configured address until Stop is called.
func (s *Server) Start() error {
	cfg := s.current().Config
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("API server listening on %s", cfg.Addr())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
