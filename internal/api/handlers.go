package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	posts, err := s.strategy.Posts(r.Context(), PostQuery{
		Subreddit:  q.Get("subreddit"),
		TimePeriod: q.Get("time_period"),
		SortBy:     q.Get("sort_by"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.strategy.Stocks(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stocks)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	source, ok := s.strategy.(CommentSource)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "comments are not available in " + s.strategy.Mode() + " mode"})
		return
	}

	comments, err := source.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, comments)
}

// statusFor maps an error to the response status
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrUpstreamFetch):
		return http.StatusBadGateway
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", zap.Error(err))
	}
}
