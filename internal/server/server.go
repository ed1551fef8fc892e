// Package server runs the HTTP front end: the v1 API, the Prometheus
// endpoint, and the periodic ingest-backlog gauge refresh.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/docvault/internal/api"
	"github.com/hashicorp-forge/docvault/internal/metrics"
)

const gaugeRefreshInterval = 30 * time.Second

// Server wraps the HTTP listener and its background gauge loop.
type Server struct {
	httpServer *http.Server
	db         *gorm.DB
	logger     hclog.Logger
}

// New builds the server from the registered API.
func New(addr string, a *api.API, db *gorm.DB, logger hclog.Logger) *Server {
	mux := http.NewServeMux()
	a.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = mux
	if origins := a.Config.Server.CORSAllowedOrigins; len(origins) > 0 {
		handler = corsMiddleware(origins, handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		db:     db,
		logger: logger.Named("server"),
	}
}

// Run serves until the context is canceled, then drains in-flight
// requests.
func (s *Server) Run(ctx context.Context) error {
	go s.refreshGauges(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// corsMiddleware answers preflights and stamps allow-origin headers for
// configured origins.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			_, ok := allowed[origin]
			if allowAll || ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Actor, X-Bot-Action-Token")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// refreshGauges keeps the ingest backlog gauges current. Failures are
// logged and retried on the next tick.
func (s *Server) refreshGauges(ctx context.Context) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	for {
		if err := metrics.RefreshIngestGauges(s.db.WithContext(ctx)); err != nil {
			s.logger.Warn("failed to refresh ingest gauges", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
