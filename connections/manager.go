package connections

import (
	"context"
	"fmt"

	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/internal/keylock"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/jrsteele09/go-sql-console/token/jwt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Summary describes a binding without exposing its connection string
type Summary struct {
	InstanceType string `json:"instanceType"`
	Host         string `json:"host"`
}

// Manager adds and removes database-session bindings
type Manager struct {
	store  sessions.Store
	codec  *jwt.Codec
	locks  *keylock.Locker
	logger zerolog.Logger
}

type Option func(*Manager)

// WithLocker shares the record lock used by the authenticators
func WithLocker(locks *keylock.Locker) Option {
	return func(m *Manager) {
		m.locks = locks
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func NewManager(store sessions.Store, codec *jwt.Codec, options ...Option) *Manager {
	m := &Manager{
		store:  store,
		codec:  codec,
		locks:  keylock.New(),
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Open validates req, mints a session pair and binds it to the connection
// string in the record for email
func (m *Manager) Open(ctx context.Context, email string, req OpenRequest) (jwt.SessionPair, error) {
	if err := req.Validate(); err != nil {
		return jwt.SessionPair{}, err
	}
	connectionString, err := req.ConnectionString()
	if err != nil {
		return jwt.SessionPair{}, err
	}

	pair, err := m.codec.CreateSessionPair(jwt.SessionClaims{InstanceType: req.InstanceType, Host: req.Host})
	if err != nil {
		return jwt.SessionPair{}, fmt.Errorf("create session pair: %w", err)
	}

	err = m.modify(ctx, email, func(record *sessions.Record) error {
		record.Bind(pair.SessionToken, sessions.DatabaseSession{
			ConnectionString: connectionString,
			RefreshToken:     pair.RefreshToken,
		})
		return nil
	})
	if err != nil {
		return jwt.SessionPair{}, err
	}

	m.logger.Info().Str("email", email).Str("instanceType", req.InstanceType).Str("host", req.Host).Msg("database session opened")
	return pair, nil
}

// Close removes the binding for sessionToken
func (m *Manager) Close(ctx context.Context, email, sessionToken string) error {
	err := m.modify(ctx, email, func(record *sessions.Record) error {
		if !record.Unbind(sessionToken) {
			return internalerrors.ErrSessionKeyNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info().Str("email", email).Msg("database session closed")
	return nil
}

// Describe summarises the binding for sessionToken
func (m *Manager) Describe(sessionToken string) (Summary, error) {
	claims, err := m.codec.ParseSessionClaims(sessionToken, jwt.UseSession)
	if err != nil {
		return Summary{}, err
	}
	return Summary{InstanceType: claims.InstanceType, Host: claims.Host}, nil
}

func (m *Manager) modify(ctx context.Context, email string, change func(record *sessions.Record) error) error {
	unlock, err := m.locks.Lock(ctx, email)
	if err != nil {
		return err
	}
	defer unlock()

	record, err := m.store.Get(ctx, email)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := change(record); err != nil {
		return err
	}
	if err := m.store.Update(ctx, email, record); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}
