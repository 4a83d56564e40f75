// Package api serves the local control and observability endpoints of a
// running clerk.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/clerk/internal/metrics"
	"github.com/MikeSquared-Agency/clerk/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Controller is the part of the session controller the API drives.
type Controller interface {
	Session() *session.Session
	Stop() error
}

type Server struct {
	router  *chi.Mux
	port    int
	ctrl    Controller
	logger  *slog.Logger
	started time.Time
}

func NewServer(port int, apiToken string, ctrl Controller, m *metrics.Metrics, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(metrics.RequestMiddleware(m))

	s := &Server{
		router:  router,
		port:    port,
		ctrl:    ctrl,
		logger:  logger,
		started: time.Now(),
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", m.Handler())
	router.Route("/api/v1/session", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/", s.session)
		r.Post("/stop", s.stop)
	})

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Session().Snapshot())
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		if errors.Is(err, session.ErrAlreadyFinalizing) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info("stop requested over API", "request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}
