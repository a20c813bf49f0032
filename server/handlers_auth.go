package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-sql-console/authz"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/server/authflowrepo"
	"github.com/jrsteele09/go-sql-console/sessions"
	"golang.org/x/oauth2"
)

type googleStartResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

type googleCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type googleCallbackResponse struct {
	IDToken   string `json:"idToken"`
	Email     string `json:"email"`
	Picture   string `json:"picture,omitempty"`
	ReturnURL string `json:"returnUrl"`
}

type meResponse struct {
	Email     string    `json:"email"`
	Picture   string    `json:"picture,omitempty"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// GoogleStartHandler begins a sign-in: it stores a fresh state, PKCE verifier
// and nonce, and returns the Google authorization URL
func (s *Server) GoogleStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nonce, err := generateRandomString(16)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}

		state := uuid.NewString()
		verifier := oauth2.GenerateVerifier()
		now := s.nowFunc()
		err = s.authState.Upsert(state, &authflowrepo.LoginState{
			CodeVerifier: verifier,
			Nonce:        nonce,
			ReturnURL:    safeReturnURL(r.URL.Query().Get("return_url")),
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.config.GetLoginStateTimeout()),
		})
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, googleStartResponse{
			AuthURL: s.exchanger.AuthCodeURL(state, verifier, nonce),
			State:   state,
		})
	}
}

// GoogleCallbackHandler finishes a sign-in. The identity and refresh tokens
// from Google replace any stored session record for the email.
func (s *Server) GoogleCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req googleCallbackRequest
		if err := decodeJSON(r, w, &req); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if req.Code == "" || req.State == "" {
			writeJSONError(w, "invalid_request", "code and state are required", http.StatusBadRequest)
			return
		}

		loginState, err := s.authState.Take(req.State)
		if err != nil {
			writeJSONError(w, "invalid_state", err.Error(), http.StatusBadRequest)
			return
		}

		tokens, claims, err := s.exchanger.Exchange(r.Context(), req.Code, loginState.CodeVerifier, loginState.Nonce)
		if err != nil {
			s.logger.Warn().Err(err).Msg("google code exchange failed")
			s.writeDomainError(w, r, err)
			return
		}
		if !claims.EmailVerified {
			writeJSONError(w, "unverified_email", "google account email is not verified", http.StatusForbidden)
			return
		}

		record := sessions.NewRecord(claims.Email)
		record.Picture = claims.Picture
		record.IdentityAccessToken = tokens.AccessToken
		record.IdentityToken = tokens.IDToken
		record.IdentityRefreshToken = tokens.RefreshToken
		if err := s.store.Save(r.Context(), claims.Email, record); err != nil {
			s.writeDomainError(w, r, err)
			return
		}

		s.logger.Info().Str("email", claims.Email).Msg("signed in")
		writeJSON(w, http.StatusOK, googleCallbackResponse{
			IDToken:   tokens.IDToken,
			Email:     claims.Email,
			Picture:   claims.Picture,
			ReturnURL: loginState.ReturnURL,
		})
	}
}

// MeHandler describes the signed-in account
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := authz.PrincipalFrom(r.Context())
		items, _ := authz.ItemsFrom(r.Context())
		if principal == nil || items == nil || items.Record == nil {
			s.writeDomainError(w, r, internalerrors.ErrIdentityContext)
			return
		}

		writeJSON(w, http.StatusOK, meResponse{
			Email:     items.Email,
			Picture:   items.Record.Picture,
			Roles:     s.enforcer.Roles(items.Email),
			ExpiresAt: principal.ExpiresAt,
		})
	}
}

// LogoutHandler deletes the session record, ending every database session
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, _ := authz.ItemsFrom(r.Context())
		if items == nil || items.Email == "" {
			s.writeDomainError(w, r, internalerrors.ErrIdentityContext)
			return
		}

		if err := s.store.Delete(r.Context(), items.Email); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		s.logger.Info().Str("email", items.Email).Msg("signed out")
		w.WriteHeader(http.StatusNoContent)
	}
}
