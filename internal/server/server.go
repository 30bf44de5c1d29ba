// Package server wires the HTTP surface: the WebSocket upgrade route, a
// liveness check, and (optionally, on a separate listener) the Prometheus
// exposition endpoint. It replaces the teacher's bare
// http.HandleFunc("/ws", ...) with a chi router carrying Recoverer,
// RequestID, and a no-cache middleware, per SPEC_FULL.md's ambient stack.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"matchsignal/internal/signaling"
)

// noCache sets headers that keep every route — in particular /ws and the
// / health check — from being cached by an intermediary, per spec §6.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// New builds the client-facing router: GET / (health) and GET /ws
// (signaling upgrade). core dispatches every decoded Frame; acceptor owns
// the actual WebSocket upgrade and framing.
func New(core *signaling.Core, acceptor signaling.WSAcceptor, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(noCache)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("alive"))
	})

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		handleWS(core, acceptor, logger, w, r)
	})

	return r
}

func handleWS(core *signaling.Core, acceptor signaling.WSAcceptor, logger *zap.Logger, w http.ResponseWriter, r *http.Request) {
	connID, frames, err := acceptor.Accept(w, r, func(id uuid.UUID) {
		core.HandleDisconnect(id)
	})
	if err != nil {
		if logger != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	core.OnConnect(connID)
	for f := range frames {
		core.Dispatch(connID, f)
	}
}

// NewMetricsRouter builds the separate /metrics listener's router, kept
// off the client-facing port so scraping traffic never shares a listener
// (and its Recoverer/RequestID stack) with signaling traffic.
func NewMetricsRouter(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", metricsHandler)
	return r
}
