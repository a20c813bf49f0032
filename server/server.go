package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/jrsteele09/go-sql-console/authn"
	"github.com/jrsteele09/go-sql-console/authz"
	"github.com/jrsteele09/go-sql-console/connections"
	"github.com/jrsteele09/go-sql-console/iam"
	"github.com/jrsteele09/go-sql-console/identity"
	"github.com/jrsteele09/go-sql-console/internal/config"
	"github.com/jrsteele09/go-sql-console/internal/keylock"
	"github.com/jrsteele09/go-sql-console/server/authflowrepo"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/jrsteele09/go-sql-console/token/jwt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Dependencies are the collaborators the console API is built from
type Dependencies struct {
	Store     sessions.Store
	Codec     *jwt.Codec
	Refresher identity.Refresher
	Exchanger identity.Exchanger
	Enforcer  *iam.Enforcer
	AuthState authflowrepo.Repo
	// Audit is optional; a zerolog sink is used when nil
	Audit authn.AuditSink
	// NowFunc is optional and drives every expiry check
	NowFunc func() time.Time
	Logger  *zerolog.Logger
}

func (d Dependencies) validate() error {
	var missing []string
	if d.Store == nil {
		missing = append(missing, "Store")
	}
	if d.Codec == nil {
		missing = append(missing, "Codec")
	}
	if d.Refresher == nil {
		missing = append(missing, "Refresher")
	}
	if d.Exchanger == nil {
		missing = append(missing, "Exchanger")
	}
	if d.Enforcer == nil {
		missing = append(missing, "Enforcer")
	}
	if d.AuthState == nil {
		missing = append(missing, "AuthState")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

type Server struct {
	env         string
	mux         *http.ServeMux
	handler     http.Handler
	routes      []string
	config      config.Config
	store       sessions.Store
	exchanger   identity.Exchanger
	enforcer    *iam.Enforcer
	authState   authflowrepo.Repo
	connections *connections.Manager
	evaluator   *authz.Evaluator
	limiter     *RateLimiter
	nowFunc     func() time.Time
	logger      zerolog.Logger

	identityPolicy authz.Policy
	openPolicy     authz.Policy
	sessionPolicy  authz.Policy
}

func New(config config.Config, deps Dependencies) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}

	logger := log.Logger
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	nowFunc := deps.NowFunc
	if nowFunc == nil {
		nowFunc = time.Now
	}

	// One lock table for every writer of a session record
	locks := keylock.New()
	authnOptions := []authn.Option{
		authn.WithLocker(locks),
		authn.WithNowFunc(nowFunc),
		authn.WithLogger(logger),
	}
	if deps.Audit != nil {
		authnOptions = append(authnOptions, authn.WithAuditSink(deps.Audit))
	}

	s := &Server{
		env:       config.GetEnv(),
		mux:       http.NewServeMux(),
		config:    config,
		store:     deps.Store,
		exchanger: deps.Exchanger,
		enforcer:  deps.Enforcer,
		authState: deps.AuthState,
		connections: connections.NewManager(deps.Store, deps.Codec,
			connections.WithLocker(locks),
			connections.WithLogger(logger),
		),
		evaluator: authz.NewEvaluator([]authn.Authenticator{
			authn.NewIdentityAuthenticator(deps.Store, deps.Refresher, authnOptions...),
			authn.NewSessionAuthenticator(deps.Store, deps.Codec, authnOptions...),
		}, authz.WithLogger(logger)),
		nowFunc: nowFunc,
		logger:  logger,

		identityPolicy: authz.IdentityPolicy(iam.RoleRequirement{Enforcer: deps.Enforcer, Resource: iam.ResourceAccount, Action: iam.ActionRead}),
		openPolicy:     authz.IdentityPolicy(iam.RoleRequirement{Enforcer: deps.Enforcer, Resource: iam.ResourceConnections, Action: iam.ActionWrite}),
		sessionPolicy:  authz.SessionPolicy(iam.RoleRequirement{Enforcer: deps.Enforcer, Resource: iam.ResourceConnections, Action: iam.ActionRead}),
	}

	if rps := config.GetRateLimitRPS(); rps > 0 {
		s.limiter = NewRateLimiter(rate.Limit(rps), config.GetRateLimitBurst())
	}

	s.initRoutes()
	s.handler = cors.Handler(s.corsOptions())(s.mux)
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background work started by New
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// corsOptions lets the browser send the credential headers and read the
// refreshed token and error headers
func (s *Server) corsOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   s.config.GetAllowedOrigins().List(),
		AllowedMethods:   s.config.GetAllowedMethods(),
		AllowedHeaders:   s.config.GetAllowedHeaders(),
		ExposedHeaders:   s.config.GetExposedHeaders(),
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%s %-7s%s] %s", color, method, ResetColor, path)
}
