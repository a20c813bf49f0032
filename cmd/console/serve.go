package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-sql-console/iam"
	"github.com/jrsteele09/go-sql-console/identity"
	"github.com/jrsteele09/go-sql-console/internal/config"
	"github.com/jrsteele09/go-sql-console/server"
	"github.com/jrsteele09/go-sql-console/server/authflowrepo"
	"github.com/jrsteele09/go-sql-console/token/jwt"
	"github.com/jrsteele09/go-sql-console/token/keys"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const tokenKeyID = "console-session"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the console API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logger := configureLogger(c)
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := buildServer(ctx, c, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer, logger)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	returnError = shutdown(httpServer)
	logger.Info().Msg("Server stopped")
	return returnError
}

func buildServer(ctx context.Context, c config.Config, logger zerolog.Logger) (*server.Server, func(), error) {
	keyPair, err := keys.LoadKeyPairFromFiles(tokenKeyID, c.GetTokenPrivateKeyFile(), c.GetTokenPublicKeyFile())
	if err != nil {
		return nil, nil, fmt.Errorf("load token keys (run `console keygen` first): %w", err)
	}
	if !keyPair.CanSign() {
		return nil, nil, fmt.Errorf("token private key %s is required to mint session tokens", c.GetTokenPrivateKeyFile())
	}
	codec := jwt.NewCodec(keys.NewKeyPairSigner(keyPair), c.GetTokenIssuer(), c.GetTokenAudience(),
		jwt.WithLifetimes(c.GetSessionTokenLifetime(), c.GetRefreshTokenLifetime()),
		jwt.WithLogger(logger),
	)

	if c.GetGoogleClientID() == "" {
		return nil, nil, errors.New("GOOGLE_CLIENT_ID is required")
	}
	verifier, err := identity.NewGoogleVerifier(ctx, c.GetGoogleClientID())
	if err != nil {
		return nil, nil, err
	}
	google := identity.NewGoogleClient(c.GetGoogleClientID(), c.GetGoogleClientSecret(), c.GetGoogleRedirectURL(),
		identity.WithVerifier(verifier),
		identity.WithRefreshTimeout(c.GetGoogleRefreshTimeout()),
		identity.WithLogger(logger),
	)

	policy, err := iam.LoadPolicyFile(c.GetIAMPolicyFile())
	if err != nil {
		return nil, nil, err
	}
	enforcer, err := iam.NewEnforcer(policy)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := openStore(ctx, c, logger)
	if err != nil {
		return nil, nil, err
	}

	srv, err := server.New(c, server.Dependencies{
		Store:     store,
		Codec:     codec,
		Refresher: google,
		Exchanger: google,
		Enforcer:  enforcer,
		AuthState: authflowrepo.NewInMemoryRepo(),
		Logger:    &logger,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	return srv, func() {
		srv.Close()
		closeStore()
	}, nil
}

func configureLogger(c config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", c.GetAppName()).Logger()
	if c.GetEnv() == "DEV" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	log.Logger = logger
	return logger
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
