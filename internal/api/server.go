// SPDX-License-Identifier: MIT

// Package api exposes the daemon's HTTP surface: health probes and a small
// status/refresh API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/mapio/mapio-gpio-ha/internal/bridge"
	"github.com/mapio/mapio-gpio-ha/internal/health"
	"github.com/mapio/mapio-gpio-ha/internal/log"
)

// Bridger is the bridge surface the API needs.
type Bridger interface {
	Status() bridge.Status
	TriggerRefresh(ctx context.Context) error
}

// Server is the HTTP API handler.
type Server struct {
	health *health.Manager
	bridge Bridger
	router chi.Router
}

// New creates the API server.
func New(hm *health.Manager, b Bridger) *Server {
	s := &Server{
		health: hm,
		bridge: b,
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		// The refresh endpoint pokes the PMIC; keep probes from turning
		// it into a polling interface.
		r.With(httprate.LimitByIP(6, time.Minute)).Post("/refresh", s.handleRefresh)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.bridge.Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.TriggerRefresh(r.Context()); err != nil {
		if errors.Is(err, bridge.ErrRefreshThrottled) {
			writeJSON(w, r, http.StatusTooManyRequests, map[string]string{
				"error": "refresh throttled, try again later",
			})
			return
		}
		writeJSON(w, r, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, r, http.StatusOK, s.bridge.Status())
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("event", "api.encode_error").Msg("failed to encode response")
	}
}

// requestLogger logs each request with method, path, status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := log.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger := log.WithComponentFromContext(ctx, "api")
		logger.Debug().
			Str("event", "http.request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}
