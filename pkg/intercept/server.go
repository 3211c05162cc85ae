package intercept

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/getmoxy/moxy/pkg/logging"
)

// Server runs an Interceptor on a listen address with graceful
// shutdown.
type Server struct {
	Addr    string
	Handler http.Handler
	Logger  *slog.Logger

	httpServer *http.Server
}

// NewServer creates a server for the given handler.
func NewServer(addr string, handler http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = logging.Nop()
	}
	return &Server{Addr: addr, Handler: handler, Logger: log}
}

// ListenAndServe blocks serving traffic until ctx is cancelled, then
// drains in-flight requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.Logger.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.Logger.Info("server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
