package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goevery/realtime/internal/broadcaster"
	"go.uber.org/zap"
)

// httpService runs the HTTP server under the supervisor. On shutdown it
// closes the registry so every websocket session ends, then drains the
// server.
type httpService struct {
	logger          *zap.Logger
	server          *http.Server
	registry        *broadcaster.InMemoryRegistry
	shutdownTimeout time.Duration
}

func (s *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server",
			zap.String("address", s.server.Addr))

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("stopping http server")

		s.registry.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}

		<-errCh

		s.logger.Info("http server stopped")

		return ctx.Err()
	}
}

func (s *httpService) String() string {
	return "http-server"
}
