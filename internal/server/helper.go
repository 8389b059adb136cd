package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/nanato/wp-github-updates/internal/download"
	"github.com/nanato/wp-github-updates/internal/githubapi"
	"github.com/nanato/wp-github-updates/internal/install"
	"github.com/nanato/wp-github-updates/internal/store"
	"github.com/nanato/wp-github-updates/internal/update"
	"github.com/sirupsen/logrus"
)

const maxRequestBody = 1 << 20

func (s *Server) setContentTypeJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
}

func (s *Server) writeJSON(w http.ResponseWriter, d any) {
	s.setContentTypeJSON(w)
	err := json.NewEncoder(w).Encode(d)
	if err != nil {
		s.log.Error(err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, r *http.Request, statusCode int, err error, alternativeMessage ...string) {
	errMsg := err.Error()
	s.log.WithContext(r.Context()).WithFields(logrus.Fields{
		LogFieldRequestID: middleware.GetReqID(r.Context()),
		LogFieldHTTPRequest: map[string]any{
			"requestMethod": r.Method,
			"requestUrl":    r.URL.EscapedPath(),
			"status":        statusCode,
		},
	}).Errorf("error: %s", errMsg)

	s.setContentTypeJSON(w)
	w.WriteHeader(statusCode)

	if len(alternativeMessage) > 0 {
		errMsg = strings.Join(alternativeMessage, " ")
	}
	s.writeJSON(w, map[string]string{"error": errMsg})
}

// writeError responds with the status derived from err.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, alternativeMessage ...string) {
	s.writeJSONError(w, r, statusFromError(err), err, alternativeMessage...)
}

func (s *Server) requestLogger(r *http.Request) *logrus.Entry {
	return s.log.WithContext(r.Context()).WithFields(logrus.Fields{
		LogFieldRequestID: middleware.GetReqID(r.Context()),
		LogFieldHTTPRequest: map[string]any{
			"requestMethod": r.Method,
			"requestUrl":    r.URL.EscapedPath(),
		},
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid %s parameter %q", name, v)
	}
	return i, nil
}

func statusFromError(err error) int {
	var validationErr *store.ValidationError
	var dlErr *download.HTTPError
	var apiErr *githubapi.Error
	switch {
	case githubapi.IsRateLimited(err):
		return http.StatusTooManyRequests
	case githubapi.IsNotFound(err),
		errors.Is(err, download.ErrNotFound),
		errors.Is(err, store.ErrRepositoryNotFound),
		errors.Is(err, update.ErrNotRegistered),
		errors.Is(err, update.ErrNotInstalled):
		return http.StatusNotFound
	case errors.Is(err, install.ErrAuthRequired):
		return http.StatusUnauthorized
	case githubapi.IsAccessDenied(err):
		return githubapi.StatusCode(err)
	case errors.Is(err, download.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, install.ErrDirectoryNotEmpty):
		return http.StatusConflict
	case errors.As(err, &validationErr),
		errors.Is(err, install.ErrInvalidType),
		errors.Is(err, install.ErrInvalidSlug):
		return http.StatusBadRequest
	case errors.As(err, &apiErr), errors.As(err, &dlErr),
		errors.Is(err, githubapi.ErrNoDownloadURL),
		errors.Is(err, download.ErrInvalidArchive),
		errors.Is(err, download.ErrIncompleteWrite):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// maskToken keeps the last four characters of a token.
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
