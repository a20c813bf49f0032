package authn_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-sql-console/authn"
	"github.com/jrsteele09/go-sql-console/identity"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/stretchr/testify/require"
)

func TestIdentityAuthenticator_ValidTokenEmitsEmail(t *testing.T) {
	f := newFixture(t)
	token := idToken(t, "a@x.com", t0.Add(time.Hour))
	f.saveRecord(t, "a@x.com", token, nil)

	req := newRequest(map[string]string{authn.HeaderIdentityToken: token})
	outcome := f.identity.Authenticate(context.Background(), req)

	require.True(t, outcome.Succeeded)
	require.Equal(t, map[string]string{authn.ClaimEmail: "a@x.com"}, outcome.Identity.Claims)
	require.Equal(t, authn.SchemeIdentity, outcome.Identity.Scheme)
	require.Nil(t, outcome.Rotated)
	require.True(t, t0.Add(time.Hour).Equal(outcome.ExpiresAt))
	require.Empty(t, req.Response.Get(authn.HeaderIdentityError))
	require.Empty(t, req.Response.Get(authn.HeaderRefreshedIdentityToken))

	require.Equal(t, "a@x.com", req.Items.Email)
	require.NotNil(t, req.Items.Record)
	require.Equal(t, token, req.Items.Record.IdentityToken)
}

func TestIdentityAuthenticator_MissingHeaderSkipsStore(t *testing.T) {
	f := newFixture(t)

	req := newRequest(nil)
	outcome := f.identity.Authenticate(context.Background(), req)

	require.False(t, outcome.Succeeded)
	require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrMissingCredential)
	require.Equal(t, authn.IdentityAuthenticationFailed, req.Response.Get(authn.HeaderIdentityError))
	require.Zero(t, f.store.Calls())
}

func TestIdentityAuthenticator_Failures(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture) string
		reason error
	}{
		{
			name: "no email claim",
			setup: func(t *testing.T, f *fixture) string {
				return idToken(t, "", t0.Add(time.Hour))
			},
			reason: internalerrors.ErrMissingClaim,
		},
		{
			name: "no sessions at all",
			setup: func(t *testing.T, f *fixture) string {
				return idToken(t, "a@x.com", t0.Add(time.Hour))
			},
			reason: internalerrors.ErrNoSessions,
		},
		{
			name: "unknown email",
			setup: func(t *testing.T, f *fixture) string {
				f.saveRecord(t, "b@x.com", idToken(t, "b@x.com", t0.Add(time.Hour)), nil)
				return idToken(t, "a@x.com", t0.Add(time.Hour))
			},
			reason: sessions.ErrSessionNotFound,
		},
		{
			name: "no exp claim",
			setup: func(t *testing.T, f *fixture) string {
				token := idToken(t, "a@x.com", time.Time{})
				f.saveRecord(t, "a@x.com", token, nil)
				return token
			},
			reason: internalerrors.ErrMissingClaim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			token := tt.setup(t, f)

			req := newRequest(map[string]string{authn.HeaderIdentityToken: token})
			outcome := f.identity.Authenticate(context.Background(), req)

			require.False(t, outcome.Succeeded)
			require.ErrorIs(t, outcome.FailureReason, tt.reason)
			require.Equal(t, authn.IdentityAuthenticationFailed, req.Response.Get(authn.HeaderIdentityError))
			require.Zero(t, f.refresher.Calls())
			require.Zero(t, f.audit.Count())
		})
	}
}

func TestIdentityAuthenticator_MismatchDeletesRecord(t *testing.T) {
	f := newFixture(t)
	t1 := idToken(t, "a@x.com", t0.Add(time.Hour), "jti", "T1")
	t2 := idToken(t, "a@x.com", t0.Add(time.Hour), "jti", "T2")
	f.saveRecord(t, "a@x.com", t1, map[string]sessions.DatabaseSession{
		"S1": {ConnectionString: "Host=h;Database=d", RefreshToken: "R1"},
	})

	req := newRequest(map[string]string{authn.HeaderIdentityToken: t2})
	outcome := f.identity.Authenticate(context.Background(), req)

	require.False(t, outcome.Succeeded)
	require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrTokenMismatch)
	require.Equal(t, authn.IdentityAuthenticationFailed, req.Response.Get(authn.HeaderIdentityError))

	_, err := f.store.Store.Get(context.Background(), "a@x.com")
	require.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestIdentityAuthenticator_ExpiredTokenRefreshes(t *testing.T) {
	f := newFixture(t)
	old := idToken(t, "a@x.com", t0.Add(-time.Minute))
	fresh := idToken(t, "a@x.com", t0.Add(time.Hour))
	f.saveRecord(t, "a@x.com", old, nil)
	f.refresher.tokens = identity.Tokens{AccessToken: "access-2", IDToken: fresh, RefreshToken: "google-refresh-2"}

	req := newRequest(map[string]string{authn.HeaderIdentityToken: old})
	outcome := f.identity.Authenticate(context.Background(), req)

	require.True(t, outcome.Succeeded)
	require.Equal(t, "a@x.com", outcome.Identity.Claims[authn.ClaimEmail])
	require.NotNil(t, outcome.Rotated)
	require.Equal(t, fresh, outcome.Rotated.IdentityToken)
	require.Equal(t, fresh, req.Response.Get(authn.HeaderRefreshedIdentityToken))
	require.True(t, t0.Add(time.Hour).Equal(outcome.ExpiresAt))

	stored := f.record(t, "a@x.com")
	require.Equal(t, fresh, stored.IdentityToken)
	require.Equal(t, "access-2", stored.IdentityAccessToken)
	require.Equal(t, "google-refresh-2", stored.IdentityRefreshToken)
	require.Equal(t, fresh, req.Items.Record.IdentityToken)
	require.Equal(t, 1, f.refresher.Calls())
}

func TestIdentityAuthenticator_ExpiresExactlyAtExp(t *testing.T) {
	f := newFixture(t)
	token := idToken(t, "a@x.com", t0)
	f.saveRecord(t, "a@x.com", token, nil)
	f.refresher.err = errors.New("refresh disabled")

	outcome := f.identity.Authenticate(context.Background(), newRequest(map[string]string{authn.HeaderIdentityToken: token}))
	require.False(t, outcome.Succeeded)
	require.Equal(t, 1, f.refresher.Calls())
}

func TestIdentityAuthenticator_RefreshFailure(t *testing.T) {
	f := newFixture(t)
	old := idToken(t, "a@x.com", t0.Add(-time.Minute))
	f.saveRecord(t, "a@x.com", old, nil)
	f.refresher.err = internalerrors.ErrIdentityRefreshFailed

	req := newRequest(map[string]string{authn.HeaderIdentityToken: old})
	outcome := f.identity.Authenticate(context.Background(), req)

	require.False(t, outcome.Succeeded)
	require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrIdentityRefreshFailed)
	require.Equal(t, authn.IdentityAuthenticationFailed, req.Response.Get(authn.HeaderIdentityError))
	require.Empty(t, req.Response.Get(authn.HeaderRefreshedIdentityToken))
	require.Equal(t, old, f.record(t, "a@x.com").IdentityToken)
	require.Equal(t, 1, f.audit.Count())
}

func TestIdentityAuthenticator_PaddedTokenRejected(t *testing.T) {
	f := newFixture(t)
	token := idToken(t, "a@x.com", t0.Add(time.Hour))
	f.saveRecord(t, "a@x.com", token, nil)

	req := newRequest(map[string]string{authn.HeaderIdentityToken: " " + token + " "})
	outcome := f.identity.Authenticate(context.Background(), req)

	require.False(t, outcome.Succeeded)
	require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrInvalidToken)
	require.Equal(t, authn.IdentityAuthenticationFailed, req.Response.Get(authn.HeaderIdentityError))
	require.Equal(t, token, f.record(t, "a@x.com").IdentityToken)
}

func TestIdentityAuthenticator_BlankHeaderIsMissing(t *testing.T) {
	f := newFixture(t)

	outcome := f.identity.Authenticate(context.Background(), newRequest(map[string]string{authn.HeaderIdentityToken: "   "}))

	require.False(t, outcome.Succeeded)
	require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrMissingCredential)
	require.Zero(t, f.store.Calls())
}

func TestIdentityAuthenticator_CancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	f := newFixture(t)
	old := idToken(t, "a@x.com", t0.Add(-time.Minute))
	fresh := idToken(t, "a@x.com", t0.Add(time.Hour), "jti", "fresh")
	f.saveRecord(t, "a@x.com", old, nil)
	f.refresher.tokens = identity.Tokens{IDToken: fresh}
	f.refresher.block = make(chan struct{})

	leaderCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	leaderReq := newRequest(map[string]string{authn.HeaderIdentityToken: old})
	leaderDone := make(chan authn.Outcome, 1)
	go func() { leaderDone <- f.identity.Authenticate(leaderCtx, leaderReq) }()
	require.Eventually(t, func() bool { return f.refresher.Calls() == 1 }, time.Second, time.Millisecond)

	followerReq := newRequest(map[string]string{authn.HeaderIdentityToken: old})
	followerDone := make(chan authn.Outcome, 1)
	go func() { followerDone <- f.identity.Authenticate(context.Background(), followerReq) }()
	// let the follower join the in-flight refresh
	time.Sleep(50 * time.Millisecond)

	cancel()
	leader := <-leaderDone
	require.False(t, leader.Succeeded)
	require.ErrorIs(t, leader.FailureReason, context.Canceled)

	close(f.refresher.block)
	follower := <-followerDone
	require.True(t, follower.Succeeded)
	require.Equal(t, fresh, followerReq.Response.Get(authn.HeaderRefreshedIdentityToken))
	require.Equal(t, 1, f.refresher.Calls())
	require.Equal(t, fresh, f.record(t, "a@x.com").IdentityToken)
}

func TestIdentityAuthenticator_RefreshForOtherEmailRejected(t *testing.T) {
	f := newFixture(t)
	old := idToken(t, "a@x.com", t0.Add(-time.Minute))
	f.saveRecord(t, "a@x.com", old, nil)
	f.refresher.tokens = identity.Tokens{IDToken: idToken(t, "b@x.com", t0.Add(time.Hour))}

	outcome := f.identity.Authenticate(context.Background(), newRequest(map[string]string{authn.HeaderIdentityToken: old}))
	require.False(t, outcome.Succeeded)
	require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrIdentityRefreshFailed)
	require.Equal(t, old, f.record(t, "a@x.com").IdentityToken)
}

func TestIdentityAuthenticator_UnexpectedErrorsAreAudited(t *testing.T) {
	t.Run("store error", func(t *testing.T) {
		f := newFixture(t)
		f.store.countErr = errors.New("connection refused")

		req := newRequest(map[string]string{authn.HeaderIdentityToken: idToken(t, "a@x.com", t0.Add(time.Hour))})
		outcome := f.identity.Authenticate(context.Background(), req)

		require.False(t, outcome.Succeeded)
		require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrInternal)
		require.Equal(t, 1, f.audit.Count())
		require.Equal(t, authn.IdentityAuthenticationFailed, req.Response.Get(authn.HeaderIdentityError))
	})

	t.Run("panic", func(t *testing.T) {
		f := newFixture(t)
		token := idToken(t, "a@x.com", t0.Add(time.Hour))
		f.saveRecord(t, "a@x.com", token, nil)
		f.store.panicOnGet = true

		req := newRequest(map[string]string{authn.HeaderIdentityToken: token})
		var outcome authn.Outcome
		require.NotPanics(t, func() {
			outcome = f.identity.Authenticate(context.Background(), req)
		})

		require.False(t, outcome.Succeeded)
		require.ErrorIs(t, outcome.FailureReason, internalerrors.ErrInternal)
		require.Equal(t, 1, f.audit.Count())
		require.Equal(t, authn.IdentityAuthenticationFailed, req.Response.Get(authn.HeaderIdentityError))
	})
}
