// Package httpops exposes the local-only operational surface: /healthz
// and /metrics. There is no read API here — the shortlist is consumed
// from Postgres or the audit JSON artifacts, never over HTTP.
package httpops

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/oppscan/oppscan/internal/config"
)

// Server is the ops-only HTTP server: health and metrics, nothing else.
type Server struct {
	router *mux.Router
	server *http.Server
	health *HealthHandler
}

// NewServer builds the ops server and binds its listener eagerly so
// port conflicts surface before the orchestrator starts its first run.
func NewServer(cfg config.OpsConfig, health *HealthHandler) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ops port %d busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	router := mux.NewRouter()
	router.Use(requestLoggingMiddleware)

	router.Handle("/healthz", health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(notFound)

	s := &Server{
		router: router,
		health: health,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	return s, nil
}

// Start blocks serving until the listener errors or is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("ops server starting (healthz + metrics, local-only)")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("ops request")
	})
}

type statusWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
