// Package server exposes the control facade over HTTP with server-sent event streams.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"onionctl/internal/config"
	"onionctl/internal/control"
	"onionctl/pkg/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server serves the HTTP API.
type Server struct {
	facade *control.Facade
	cfg    config.ListenerConfig

	// baseCtx bounds tunnel starts and circuit refreshes, which must not end with the
	// request that triggered them.
	baseCtx context.Context
}

// New creates a server for facade.
func New(facade *control.Facade, cfg config.ListenerConfig) *Server {
	return &Server{facade: facade, cfg: cfg, baseCtx: context.Background()}
}

// Addr is the listen address.
func (s *Server) Addr() string {
	host := s.cfg.Host
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(s.cfg.Port))
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", s.handleStatus)
		api.Post("/connect", s.handleConnect)
		api.Post("/disconnect", s.handleDisconnect)

		api.Get("/transports", s.handleTransports)
		api.Get("/bridges", s.handleGetBridges)
		api.Put("/bridges", s.handlePutBridges)
		api.Post("/bridges/discard", s.handleDiscardBridges)

		api.Get("/circuits", s.handleListCircuits)
		api.Post("/circuits/refresh", s.handleRefreshCircuits)

		api.Get("/logs", s.handleListLogs)
		api.Get("/logs/{name}/stream", s.handleLogStream)

		api.Get("/events", s.handleEvents)
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server", "Listening on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logging.Info("Server", "Shutting down HTTP API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server", "Shutdown: %v", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("Server", "%s %s -> %d (%s, req %s)", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}
