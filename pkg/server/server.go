// Package server exposes the support orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pario-ai/supportdesk/pkg/feedback"
	"github.com/pario-ai/supportdesk/pkg/memory"
	"github.com/pario-ai/supportdesk/pkg/metrics"
	"github.com/pario-ai/supportdesk/pkg/models"
	"github.com/pario-ai/supportdesk/pkg/orchestrator"
)

const (
	maxBodyBytes       = 1 << 20
	popularFeedbackTop = 5
	popularCacheTop    = 10
	shutdownTimeout    = 5 * time.Second
)

// Orchestrator is the part of orchestrator.Service the server needs.
type Orchestrator interface {
	Query(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error)
	RecordFeedback(ctx context.Context, e models.FeedbackEntry) (models.FeedbackEntry, error)
	FeedbackStats(ctx context.Context) (models.FeedbackStats, error)
	FeedbackSuggestions(ctx context.Context) ([]string, error)
	CacheStats() models.CacheStats
	PopularQueries(n int) []models.PopularQuery
	ClearCache() int
	Session(ctx context.Context, id string) (models.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	Health() orchestrator.Health
}

var _ Orchestrator = (*orchestrator.Service)(nil)

// Server is the supportdesk HTTP API.
type Server struct {
	addr   string
	orch   Orchestrator
	logger *zap.Logger
	mux    *http.ServeMux
}

// New creates a Server listening on addr once started.
func New(addr string, o Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:   addr,
		orch:   o,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("POST /feedback", s.handleFeedback)
	s.mux.HandleFunc("GET /analytics/feedback", s.handleFeedbackAnalytics)
	s.mux.HandleFunc("GET /analytics/cache", s.handleCacheAnalytics)
	s.mux.HandleFunc("POST /cache/clear", s.handleCacheClear)
	s.mux.HandleFunc("GET /session/{id}/history", s.handleSessionHistory)
	s.mux.HandleFunc("DELETE /session/{id}", s.handleSessionDelete)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("supportdesk listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.orch.Query(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var entry models.FeedbackEntry
	if !decodeJSON(w, r, &entry) {
		return
	}

	e, err := s.orch.RecordFeedback(r.Context(), entry)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Thank you for your feedback!",
		"id":      e.ID,
		"rating":  e.Rating,
	})
}

func (s *Server) handleFeedbackAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orch.FeedbackStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	suggestions, err := s.orch.FeedbackSuggestions(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":           stats,
		"suggestions":     nonNil(suggestions),
		"popular_queries": nonNil(s.orch.PopularQueries(popularFeedbackTop)),
	})
}

func (s *Server) handleCacheAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_stats":         s.orch.CacheStats(),
		"most_cached_queries": nonNil(s.orch.PopularQueries(popularCacheTop)),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	n := s.orch.ClearCache()
	s.logger.Info("cache cleared", zap.Int("entries", n))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Cache cleared successfully",
		"cleared": n,
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.orch.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     rec.SessionID,
		"history":        nonNil(rec.Messages),
		"metadata":       rec.Metadata,
		"total_messages": len(rec.Messages),
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": fmt.Sprintf("Session %s cleared", id),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Health())
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuery), errors.Is(err, feedback.ErrInvalidRating):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, memory.ErrSessionNotFound):
		writeJSONError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, orchestrator.ErrFeedbackDisabled):
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]apiError{
		"error": {Message: message, Type: "supportdesk_error", Code: code},
	})
}

// nonNil keeps empty lists as [] rather than null in responses.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
