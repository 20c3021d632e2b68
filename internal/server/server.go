// Package server is the HTTP front door: /solve authenticates and launches
// a chain asynchronously, /healthz reports liveness and uptime.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Solver runs one chain to completion. Chains execute in the background,
// decoupled from the request that triggered them.
type Solver interface {
	Solve(ctx context.Context, startURL string) error
}

type Server struct {
	solver Solver
	secret string
	addr   string
	log    zerolog.Logger

	server  *http.Server
	started time.Time

	mu      sync.Mutex
	running bool
}

func New(solver Solver, addr, secret string, log zerolog.Logger) *Server {
	return &Server{
		solver:  solver,
		secret:  secret,
		addr:    addr,
		log:     log,
		started: time.Now(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/solve", s.handleSolve)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return withCORS(mux)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info().Str("addr", s.addr).Msg("listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

type solveRequest struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Secret) == "" {
		writeJSONError(w, http.StatusBadRequest, "url and secret are required")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.secret)) != 1 {
		writeJSONError(w, http.StatusUnauthorized, "invalid secret")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeJSONError(w, http.StatusConflict, "a chain is already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		if err := s.solver.Solve(context.Background(), req.URL); err != nil {
			s.log.Error().Err(err).Str("url", req.URL).Msg("chain failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"url":    req.URL,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
