package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"

	httpH "knowledgehub/internal/http/handlers"
	"knowledgehub/internal/logger"
)

type Server struct {
	Engine *gin.Engine
	log    *logger.Logger
}

type Options struct {
	AllowOrigins   []string
	MaxUploadBytes int64
}

// NewServer builds the router around hub.
func NewServer(log *logger.Logger, hub httpH.KnowledgeHub, opts Options) *Server {
	if log == nil {
		log = logger.Nop()
	}
	engine := NewRouter(RouterConfig{
		Logger:          log,
		AllowOrigins:    opts.AllowOrigins,
		DocumentHandler: httpH.NewDocumentHandler(log, hub, opts.MaxUploadBytes),
		QueryHandler:    httpH.NewQueryHandler(log, hub),
		HealthHandler:   httpH.NewHealthHandler(hub),
	})
	return &Server{Engine: engine, log: log.With("component", "HTTPServer")}
}

// Run serves on address until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, address string) error {
	srv := &nethttp.Server{
		Addr:              address,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
