// Package server exposes the chat websocket endpoint. Each accepted
// connection gets its own session and is served by a single loop that
// handles one query at a time.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"web-search-chat/internal/answer"
	"web-search-chat/internal/history"
)

// Retriever returns the sources for a query
type Retriever interface {
	Search(ctx context.Context, query string) ([]history.Result, error)
}

// Generator starts a fresh answer stream for one turn
type Generator interface {
	Generate(ctx context.Context, query string, results []history.Result, conversation string) (answer.Stream, error)
}

// Options controls the HTTP surface of the server
type Options struct {
	Addr           string
	WSPath         string
	AllowedOrigins []string
}

// Server owns the session registry and the live websocket connections
type Server struct {
	opts      Options
	registry  *history.Registry
	retriever Retriever
	generator Generator

	upgrader   websocket.Upgrader
	mux        *http.ServeMux
	httpServer *http.Server

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewServer wires the collaborators and registers the HTTP routes
func NewServer(opts Options, registry *history.Registry, retriever Retriever, generator Generator) *Server {
	if opts.WSPath == "" {
		opts.WSPath = "/ws/chat"
	}
	s := &Server{
		opts:      opts,
		registry:  registry,
		retriever: retriever,
		generator: generator,
		mux:       http.NewServeMux(),
		conns:     map[*websocket.Conn]struct{}{},
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	s.mux.HandleFunc(opts.WSPath, s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down and closes every
// live connection.
func (s *Server) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down chat server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.closeAll()
		if err != nil {
			return errors.Wrap(err, "server shutdown")
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	eg.Go(func() error {
		log.Info().Str("addr", s.opts.Addr).Str("ws_path", s.opts.WSPath).Msg("starting chat server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "listen")
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin || allowed == u.Host {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	s.track(conn)

	sessionID := s.registry.NewSession()
	logger := log.With().Str("session_id", sessionID).Str("remote", r.RemoteAddr).Logger()
	logger.Info().Msg("session opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.registry.Close(sessionID)
		s.untrack(conn)
		_ = conn.Close()
		logger.Info().Msg("session closed")
	}()

	h := &connHandler{
		conn:      conn,
		sessionID: sessionID,
		registry:  s.registry,
		retriever: s.retriever,
		generator: s.generator,
		logger:    logger,
	}
	if err := h.serve(ctx); err != nil {
		logger.Error().Err(err).Msg("connection fault, closing")
	}
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
