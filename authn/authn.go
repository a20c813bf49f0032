// Package authn implements the identity and database-session authentication
// schemes used by the console API.
package authn

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-sql-console/internal/keylock"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Request and response headers
const (
	HeaderIdentityToken = "id-token"
	HeaderSessionToken  = "db-session-token"
	HeaderRefreshToken  = "db-refresh-token"

	HeaderRefreshedIdentityToken = "refreshed-id-token"
	HeaderRefreshedSessionToken  = "refreshed-session-token"
	HeaderRefreshedRefreshToken  = "refreshed-refresh-token"

	HeaderIdentityError      = "identity-error"
	HeaderAuthorizationError = "authorization-error"
)

// Values written to the identity-error header
const (
	IdentityAuthenticationFailed = "IdAuthenticationFailed"
	SessionAuthenticationFailed  = "SessionAuthenticationFailed"
)

// Scheme names. Schemes are evaluated in ascending name order.
const (
	SchemeIdentity = "identity"
	SchemeSession  = "session"
)

// Claim names emitted by the schemes
const (
	ClaimEmail            = "email"
	ClaimConnectionString = "connectionString"
	ClaimInstanceType     = "instanceType"
	ClaimHost             = "host"
)

// Identity is the set of claims one scheme established
type Identity struct {
	Scheme string
	Claims map[string]string
}

// Claim returns a non-empty claim value
func (i Identity) Claim(name string) (string, bool) {
	v, ok := i.Claims[name]
	return v, ok && v != ""
}

// Empty reports whether the identity carries no claims
func (i Identity) Empty() bool {
	return len(i.Claims) == 0
}

// RotatedTokens holds replacement tokens issued while authenticating
type RotatedTokens struct {
	SessionToken  string
	RefreshToken  string
	IdentityToken string
}

// Outcome is the result of a single scheme
type Outcome struct {
	Succeeded     bool
	Identity      Identity
	Rotated       *RotatedTokens
	FailureReason error
	ExpiresAt     time.Time
}

// Items is the per-request bag the identity scheme fills for later schemes
type Items struct {
	Email  string
	Record *sessions.Record
}

// Request carries what a scheme may read and write for one HTTP request
type Request struct {
	Header   http.Header
	Response http.Header
	Items    *Items
}

// NewRequest wraps an inbound request and its response headers
func NewRequest(r *http.Request, w http.ResponseWriter) *Request {
	return &Request{
		Header:   r.Header,
		Response: w.Header(),
		Items:    &Items{},
	}
}

// Authenticator is one authentication scheme. Authenticate never panics and
// reports every problem as a failed Outcome.
type Authenticator interface {
	Scheme() string
	Authenticate(ctx context.Context, req *Request) Outcome
}

// headers is shared by both schemes for reading credentials and writing the
// failure and refresh headers.
type headers struct {
	failure string
}

// get returns the header value as sent. A blank value counts as absent but
// surrounding whitespace is never stripped, since credentials are compared
// byte for byte against the stored ones.
func (h headers) get(req *Request, name string) (string, bool) {
	if req.Header == nil {
		return "", false
	}
	v := req.Header.Get(name)
	return v, strings.TrimSpace(v) != ""
}

func (h headers) emit(req *Request, name, value string) {
	if req.Response != nil {
		req.Response.Set(name, value)
	}
}

func (h headers) fail(req *Request, reason error) Outcome {
	h.emit(req, HeaderIdentityError, h.failure)
	return Outcome{FailureReason: reason}
}

type options struct {
	nowFunc func() time.Time
	audit   AuditSink
	locks   *keylock.Locker
	logger  zerolog.Logger
}

type Option func(*options)

func WithNowFunc(now func() time.Time) Option {
	return func(o *options) {
		o.nowFunc = now
	}
}

func WithAuditSink(audit AuditSink) Option {
	return func(o *options) {
		o.audit = audit
	}
}

// WithLocker shares a key lock between schemes so that every
// read-modify-write of a record is serialised per email
func WithLocker(locks *keylock.Locker) Option {
	return func(o *options) {
		o.locks = locks
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func newOptions(opts []Option) options {
	o := options{
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.audit == nil {
		o.audit = NewLogAuditSink(o.logger)
	}
	if o.locks == nil {
		o.locks = keylock.New()
	}
	return o
}

// sharedCallTimeout bounds a deduplicated refresh or rotation once it no
// longer follows the context of the request that started it.
const sharedCallTimeout = 30 * time.Second

// shared runs fn once per key across concurrent callers. fn gets a context
// detached from the first caller's cancellation, so a caller that goes away
// only abandons its own wait and the others still receive the result.
func shared(ctx context.Context, group *singleflight.Group, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
