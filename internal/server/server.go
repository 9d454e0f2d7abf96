// Package server exposes the HTTP façade over the engine: query answering,
// document loading, and runtime provider swapping. It is a thin wrapper;
// all semantics live in the root package and ingest.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	fathom "github.com/fathomhq/fathom"
	"github.com/fathomhq/fathom/ingest"
	"github.com/fathomhq/fathom/internal/app"
	"github.com/fathomhq/fathom/internal/config"
)

// Server publishes the engine over HTTP. Provider hot-swaps rebuild the app
// and republish it under the lock; in-flight requests keep the app they
// started with.
type Server struct {
	mu     sync.RWMutex
	app    *app.App
	logger *slog.Logger
}

// New builds the initial app from cfg and returns a Server ready for
// Handler or Run.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{app: a, logger: logger}, nil
}

func (s *Server) current() *app.App {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.app
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /set-provider-config", s.handleSetProvider)
	mux.HandleFunc("POST /load-files", s.handleLoadFiles)
	mux.HandleFunc("POST /load-website", s.handleLoadWebsite)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return s.current().Close(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("original_query")
	if q == "" {
		writeError(w, http.StatusBadRequest, "original_query is required")
		return
	}

	var opts []fathom.QueryOption
	if v := r.URL.Query().Get("max_iter"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "max_iter must be a positive integer")
			return
		}
		opts = append(opts, fathom.WithMaxIter(n))
	}

	answer, err := s.current().Engine.Query(r.Context(), q, opts...)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":        answer.Text,
		"consume_token": answer.Tokens,
	})
}

type setProviderRequest struct {
	Feature  string         `json:"feature"`
	Provider string         `json:"provider"`
	Config   map[string]any `json:"config"`
}

func (s *Server) handleSetProvider(w http.ResponseWriter, r *http.Request) {
	var req setProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
		return
	}
	if req.Feature == "" || req.Provider == "" {
		writeError(w, http.StatusBadRequest, "feature and provider are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.app.Config()
	if err := cfg.SetProvider(req.Feature, req.Provider, req.Config); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rebuilt, err := app.Build(r.Context(), cfg, s.logger)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("rebuild with new provider: %v", err))
		return
	}

	old := s.app
	s.app = rebuilt
	go old.Close(context.Background())

	s.logger.Info("provider swapped", "feature", req.Feature, "provider", req.Provider)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%s provider set to %s", req.Feature, req.Provider),
	})
}

type loadRequest struct {
	Paths                 []string `json:"paths"`
	URLs                  []string `json:"urls"`
	CollectionName        string   `json:"collection_name"`
	CollectionDescription string   `json:"collection_description"`
	BatchSize             int      `json:"batch_size"`
	Force                 bool     `json:"force"`
}

func (s *Server) handleLoadFiles(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeLoadRequest(w, r)
	if !ok {
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "paths is required")
		return
	}

	n, err := s.ingestor(req).LoadFiles(r.Context(), req.Paths, loadOptions(req))
	if err != nil {
		s.logger.Error("load files failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "files loaded successfully",
		"chunks":  n,
	})
}

func (s *Server) handleLoadWebsite(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeLoadRequest(w, r)
	if !ok {
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}

	n, err := s.ingestor(req).LoadWebsite(r.Context(), req.URLs, loadOptions(req))
	if err != nil {
		s.logger.Error("load website failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "website loaded successfully",
		"chunks":  n,
	})
}

// ingestor returns the current app's ingestor, rebuilt with a request-level
// batch size when one is given.
func (s *Server) ingestor(req loadRequest) *ingest.Ingestor {
	a := s.current()
	if req.BatchSize > 0 {
		return ingest.NewIngestor(a.DB, a.Embedding,
			ingest.WithBatchSize(req.BatchSize),
			ingest.WithLogger(s.logger),
		)
	}
	return a.Ingestor
}

func decodeLoadRequest(w http.ResponseWriter, r *http.Request) (loadRequest, bool) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
		return loadRequest{}, false
	}
	return req, true
}

func loadOptions(req loadRequest) ingest.LoadOptions {
	return ingest.LoadOptions{
		Collection:  req.CollectionName,
		Description: req.CollectionDescription,
		Force:       req.Force,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
