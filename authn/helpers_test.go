package authn_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-sql-console/authn"
	"github.com/jrsteele09/go-sql-console/identity"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/jrsteele09/go-sql-console/token/jwt"
	"github.com/jrsteele09/go-sql-console/token/keys"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink keeps every reported exception
type recordingSink struct {
	mu     sync.Mutex
	errors []error
}

func (s *recordingSink) ReportException(_ context.Context, err error, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, err)
}

func (s *recordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errors)
}

// fakeRefresher returns a fixed token set or error and counts calls
type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	tokens identity.Tokens
	err    error
	delay  time.Duration
	// block, when set, holds every call until it is closed
	block chan struct{}
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (identity.Tokens, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return identity.Tokens{}, f.err
	}
	return f.tokens, nil
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// spyStore counts calls and can be made to fail or panic
type spyStore struct {
	sessions.Store
	mu         sync.Mutex
	calls      int
	countErr   error
	panicOnGet bool
}

func (s *spyStore) track() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
}

func (s *spyStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *spyStore) Count(ctx context.Context) (int, error) {
	s.track()
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.Store.Count(ctx)
}

func (s *spyStore) Get(ctx context.Context, email string) (*sessions.Record, error) {
	s.track()
	if s.panicOnGet {
		panic("store exploded")
	}
	return s.Store.Get(ctx, email)
}

type fixture struct {
	clock     *clock
	store     *spyStore
	codec     *jwt.Codec
	refresher *fakeRefresher
	audit     *recordingSink
	identity  *authn.IdentityAuthenticator
	session   *authn.SessionAuthenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kp, err := keys.GenerateRSAKeyPair("authn-test", 2048)
	require.NoError(t, err)

	f := &fixture{
		clock:     &clock{now: t0},
		store:     &spyStore{Store: sessions.NewInMemoryStore()},
		refresher: &fakeRefresher{},
		audit:     &recordingSink{},
	}
	f.codec = jwt.NewCodec(keys.NewKeyPairSigner(kp), "sql-console", "sql-console-api",
		jwt.WithNowFunc(f.clock.Now),
		jwt.WithLifetimes(15*time.Minute, time.Hour),
		jwt.WithLogger(zerolog.Nop()),
	)

	opts := []authn.Option{
		authn.WithNowFunc(f.clock.Now),
		authn.WithAuditSink(f.audit),
		authn.WithLogger(zerolog.Nop()),
	}
	f.identity = authn.NewIdentityAuthenticator(f.store, f.refresher, opts...)
	f.session = authn.NewSessionAuthenticator(f.store, f.codec, opts...)
	return f
}

// idToken builds a Google-style identity token. Signature is irrelevant to
// the identity scheme, which compares against the stored token.
func idToken(t *testing.T, email string, exp time.Time, extra ...string) string {
	t.Helper()
	claims := jwtlib.MapClaims{"email": email, "exp": exp.Unix()}
	if email == "" {
		delete(claims, "email")
	}
	if exp.IsZero() {
		delete(claims, "exp")
	}
	for i := 0; i+1 < len(extra); i += 2 {
		claims[extra[i]] = extra[i+1]
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("google"))
	require.NoError(t, err)
	return raw
}

func (f *fixture) saveRecord(t *testing.T, email, identityToken string, bindings map[string]sessions.DatabaseSession) *sessions.Record {
	t.Helper()
	record := sessions.NewRecord(email)
	record.IdentityAccessToken = "access-1"
	record.IdentityToken = identityToken
	record.IdentityRefreshToken = "google-refresh-1"
	for k, v := range bindings {
		record.Bind(k, v)
	}
	require.NoError(t, f.store.Store.Save(context.Background(), email, record))
	return record
}

func (f *fixture) record(t *testing.T, email string) *sessions.Record {
	t.Helper()
	record, err := f.store.Store.Get(context.Background(), email)
	require.NoError(t, err)
	return record
}

func newRequest(headers map[string]string) *authn.Request {
	req := &authn.Request{
		Header:   http.Header{},
		Response: http.Header{},
		Items:    &authn.Items{},
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}
