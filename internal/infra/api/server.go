package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"telegram-media-relay/internal/config"
	"telegram-media-relay/internal/infra/api/apiv1"
	"telegram-media-relay/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the admin HTTP surface: health, metrics and the v1 queue API.
type Server struct {
	http *http.Server
	log  *zerolog.Logger
}

func NewServer(cfg config.AdminConfig, relay usecase.RelayUseCase, logger *zerolog.Logger) *Server {
	auth := apiv1.NewAuthManager(cfg.APIKey, cfg.JWTSecret, cfg.TokenTTL)
	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(apiv1.NewServer(relay, auth, logger), logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

// NewRouter builds the full handler tree.
func NewRouter(v1 *apiv1.Server, logger *zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(logger), Recover(logger), Timeout(30*time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	apiv1.RegisterAPIV1(r, v1)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("admin server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	s.log.Info().Msg("admin server stopped")
	return nil
}
