package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dshills/filesense/internal/app"
)

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front end of an App
type Server struct {
	app  *app.App
	http *http.Server
}

// NewServer creates a server listening on addr
func NewServer(a *app.App, addr string) *Server {
	return &Server{
		app: a,
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(a),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.app.Logger.Info().Str("addr", s.http.Addr).Msg("HTTP API listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.app.Indexer.Cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
