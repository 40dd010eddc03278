// Package server exposes the HTTP API: votes, tip intents, evidence
// ingestion, and the leaderboard.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orangefortress/vote-backend/internal/config"
	"github.com/orangefortress/vote-backend/internal/evidence"
	"github.com/orangefortress/vote-backend/internal/reconcile"
	"github.com/orangefortress/vote-backend/internal/storage"
)

// Server is the HTTP API server
type Server struct {
	cfg        *config.Config
	storage    *storage.Storage
	parser     *evidence.Parser
	reconciler *reconcile.Reconciler
	sweeper    *reconcile.ZapSweeper // nil when no npub is configured
	log        *slog.Logger

	server *http.Server
}

// New creates a new Server
func New(cfg *config.Config, store *storage.Storage, parser *evidence.Parser, rec *reconcile.Reconciler, sweeper *reconcile.ZapSweeper, log *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		storage:    store,
		parser:     parser,
		reconciler: rec,
		sweeper:    sweeper,
		log:        log,
	}
}

// Handler builds the route tree
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/tips/start", s.handleStartTip)
		r.Post("/email-receipt", s.handleEmailReceipt)
		r.Post("/reconcile-zaps", s.handleReconcileZaps)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/votes", s.handleVotes)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/vote", s.handleVoteHealth)
			r.Post("/vote", s.handleVote)
			r.Get("/average/{file}", s.handleAverage)
		})
	})

	return r
}

// Start starts the server and blocks until the context is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting http server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// --- Helpers ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func bad(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"ok": false, "error": msg})
}
