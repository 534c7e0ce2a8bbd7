// Package server exposes the vecmem engine over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/vecmem/vecmem/internal/config"
	"github.com/vecmem/vecmem/internal/engine"
	"github.com/vecmem/vecmem/internal/llm"
	"github.com/vecmem/vecmem/internal/storage"
	"github.com/vecmem/vecmem/pkg/types"
)

// BreakerStater reports a circuit breaker state ("closed", "open",
// "half-open"). All model-provider clients implement it.
type BreakerStater interface {
	BreakerState() string
}

// Server wraps the engine in an http.Server with JSON handlers.
type Server struct {
	engine     *engine.Service
	breakers   map[string]BreakerStater
	httpServer *http.Server
}

// New creates a server listening on the configured host and port.
func New(cfg config.ServerConfig, eng *engine.Service) *Server {
	s := &Server{engine: eng, breakers: make(map[string]BreakerStater)}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /memories", s.handleCreateMemory)
	mux.HandleFunc("GET /memories", s.handleListMemories)
	mux.HandleFunc("GET /memories/{id}", s.handleGetMemory)
	mux.HandleFunc("PATCH /memories/{id}", s.handleUpdateMemory)
	mux.HandleFunc("DELETE /memories/{id}", s.handleDeleteMemory)
	mux.HandleFunc("GET /memories/{id}/contradictions", s.handleContradictions)
	mux.HandleFunc("GET /memories/{id}/duplicates", s.handleDuplicates)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /embeddings/rebuild", s.handleRebuildEmbeddings)
	mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	mux.HandleFunc("DELETE /cache", s.handleClearCache)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	log.Printf("vecmem server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type createMemoryRequest struct {
	Content  string                 `json:"content"`
	Type     string                 `json:"type"`
	Tags     []string               `json:"tags"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body: %v", storage.ErrInvalidInput, err))
		return
	}

	memory, err := s.engine.CreateMemory(r.Context(), req.Content, types.MemoryType(req.Type), req.Tags, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, memory)
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	opts := storage.ListOptions{
		Type:      r.URL.Query().Get("type"),
		SortOrder: r.URL.Query().Get("sort"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Offset = n
		}
	}
	if v := r.URL.Query().Get("created_after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: created_after must be RFC3339", storage.ErrInvalidInput))
			return
		}
		opts.CreatedAfter = ts
	}
	if v := r.URL.Query().Get("created_before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: created_before must be RFC3339", storage.ErrInvalidInput))
			return
		}
		opts.CreatedBefore = ts
	}

	result, err := s.engine.ListMemories(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":    result.Items,
		"total":    result.Total,
		"has_more": result.HasMore,
	})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	memory, err := s.engine.GetMemory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

type updateMemoryRequest struct {
	Content  *string                `json:"content"`
	Type     *string                `json:"type"`
	Tags     []string               `json:"tags"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req updateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body: %v", storage.ErrInvalidInput, err))
		return
	}

	params := engine.UpdateParams{
		Content:  req.Content,
		Tags:     req.Tags,
		Metadata: req.Metadata,
	}
	if req.Type != nil {
		memType := types.MemoryType(*req.Type)
		params.Type = &memType
	}

	memory, err := s.engine.UpdateMemory(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, memory)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteMemory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	Query     string   `json:"query"`
	Threshold *float64 `json:"threshold"`
	Limit     int      `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed JSON body: %v", storage.ErrInvalidInput, err))
		return
	}

	threshold := engine.DefaultSearchThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	matches, err := s.engine.SearchMemories(r.Context(), req.Query, threshold, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"matches": matches})
}

func (s *Server) handleContradictions(w http.ResponseWriter, r *http.Request) {
	results, err := s.engine.DetectContradictions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	duplicates, err := s.engine.FindDuplicates(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"duplicates": duplicates})
}

func (s *Server) handleRebuildEmbeddings(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.RebuildEmbeddings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rebuilt": count})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Embedder().Cache().Stats())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Embedder().Cache().Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegisterBreaker adds a named circuit breaker to the health report. Call
// before Start.
func (s *Server) RegisterBreaker(name string, b BreakerStater) {
	s.breakers[name] = b
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]interface{}{"status": "ok"}
	if len(s.breakers) > 0 {
		states := make(map[string]string, len(s.breakers))
		for name, b := range s.breakers {
			states[name] = b.BreakerState()
		}
		payload["breakers"] = states
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ERROR: failed to encode response: %v", err)
	}
}

// writeError maps engine errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, llm.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrGenerationFailed):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Printf("ERROR: request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
