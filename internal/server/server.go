// Package server exposes the chat, upload and catalog operations over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"pdf-chat/internal/config"
)

// NewRouter wires the middleware chain and the routes.
func NewRouter(cfg *config.Config, h *Handler) *gin.Engine {
	setupValidator()

	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes + 1<<20
	r.Use(Recovery())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(RequestLogger(), CORS(cfg.Server.CORSOrigins), ErrorHandler())

	r.GET("/healthcheck", h.Health)

	api := r.Group("/api")
	api.POST("/chat", h.Chat)
	api.POST("/ask", h.Ask)
	api.POST("/upload", h.Upload)
	api.GET("/get-chat-list", h.List)
	api.DELETE("/documents/:id", h.Delete)

	return r
}

type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

func New(cfg *config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Msg("Server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
