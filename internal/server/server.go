package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/thep200/gitee-crawler/cfg"
	"github.com/thep200/gitee-crawler/internal/checkpoint"
	"github.com/thep200/gitee-crawler/pkg/log"
)

// Server exposes stored items and checkpoints over HTTP
type Server struct {
	Logger log.Logger
	Config *cfg.Config
	server *http.Server
	router chi.Router
	port   int
}

// NewServer creates the API server. items may be nil when no database is
// configured, the items endpoint then answers 503.
func NewServer(logger log.Logger, config *cfg.Config, store checkpoint.Store, items ItemLister) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("server needs a checkpoint store")
	}
	handler := NewHandler(logger, store, items)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	handler.RegisterRoutes(r)

	return &Server{
		Logger: logger,
		Config: config,
		router: r,
		port:   config.Server.Port,
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.Logger.Info(context.Background(), "Starting API server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.Logger.Info(ctx, "Shutting down API server")
		return s.server.Shutdown(ctx)
	}
	return nil
}
