package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/sessions"
)

const maxBodyBytes = 64 << 10

// HealthHandler reports liveness
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSONError writes an error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// decodeJSON reads a single JSON document, rejecting unknown fields
func decodeJSON(r *http.Request, w http.ResponseWriter, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return internalerrors.Wrapf(internalerrors.ErrInvalidRequest, "decode body: %v", err)
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return internalerrors.Wrapf(internalerrors.ErrInvalidRequest, "body must hold a single JSON object")
	}
	return nil
}

// writeDomainError maps domain errors onto HTTP responses
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, internalerrors.ErrInvalidRequest):
		writeJSONError(w, "invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, sessions.ErrSessionNotFound), errors.Is(err, internalerrors.ErrSessionKeyNotFound):
		writeJSONError(w, "not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, internalerrors.ErrInvalidToken):
		writeJSONError(w, "invalid_token", err.Error(), http.StatusUnauthorized)
	case errors.Is(err, internalerrors.ErrIdentityExchangeFailed):
		writeJSONError(w, "invalid_grant", "sign-in with Google failed", http.StatusUnauthorized)
	case errors.Is(err, internalerrors.ErrForbidden):
		writeJSONError(w, "forbidden", err.Error(), http.StatusForbidden)
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSONError(w, "internal_error", http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
