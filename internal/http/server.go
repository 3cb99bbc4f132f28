package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vizflow-backend/internal/platform/logger"
)

// Server runs the router as a suture.Service.
type Server struct {
	Engine          *gin.Engine
	addr            string
	shutdownTimeout time.Duration
	log             *logger.Logger
}

func NewServer(cfg RouterConfig, addr string, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		Engine:          NewRouter(cfg),
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		log:             log.With("component", "HTTPServer"),
	}
}

func (s *Server) String() string { return "http-server" }

// Serve listens until ctx is cancelled, then drains in-flight requests.
// Streaming connections are cut when the drain window ends.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP shutdown incomplete", "error", err)
		_ = srv.Close()
	}
	return ctx.Err()
}
