package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-sql-console/authn"
	"github.com/jrsteele09/go-sql-console/authz"
	"github.com/jrsteele09/go-sql-console/connections"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
)

type openConnectionResponse struct {
	SessionToken     string    `json:"sessionToken"`
	RefreshToken     string    `json:"refreshToken"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// OpenConnectionHandler binds a new database session to the caller's record
func (s *Server) OpenConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, _ := authz.ItemsFrom(r.Context())
		if items == nil || items.Email == "" {
			s.writeDomainError(w, r, internalerrors.ErrIdentityContext)
			return
		}

		var req connections.OpenRequest
		if err := decodeJSON(r, w, &req); err != nil {
			s.writeDomainError(w, r, err)
			return
		}

		pair, err := s.connections.Open(r.Context(), items.Email, req)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, openConnectionResponse{
			SessionToken:     pair.SessionToken,
			RefreshToken:     pair.RefreshToken,
			SessionExpiresAt: pair.SessionExpiresAt,
			RefreshExpiresAt: pair.RefreshExpiresAt,
		})
	}
}

// CurrentConnectionHandler describes the database session on the request
func (s *Server) CurrentConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := s.connections.Describe(currentSessionToken(r))
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// CloseConnectionHandler removes the database session on the request
func (s *Server) CloseConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, _ := authz.ItemsFrom(r.Context())
		if items == nil || items.Email == "" {
			s.writeDomainError(w, r, internalerrors.ErrIdentityContext)
			return
		}

		if err := s.connections.Close(r.Context(), items.Email, currentSessionToken(r)); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// currentSessionToken is the rotated session token when the request rotated
// its session, otherwise the one presented
func currentSessionToken(r *http.Request) string {
	if principal, ok := authz.PrincipalFrom(r.Context()); ok && principal.Rotated != nil && principal.Rotated.SessionToken != "" {
		return principal.Rotated.SessionToken
	}
	return strings.TrimSpace(r.Header.Get(authn.HeaderSessionToken))
}
