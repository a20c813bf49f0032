// Package pgstore keeps session records in a PostgreSQL table with one jsonb
// document per email.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-sql-console/sessions"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS console_sessions (
	email      TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	getSQL    = `SELECT record FROM console_sessions WHERE email = $1`
	upsertSQL = `INSERT INTO console_sessions (email, record, created_at, updated_at) VALUES ($1, $2, $3, $3)
ON CONFLICT (email) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`
	updateSQL = `UPDATE console_sessions SET record = $2, updated_at = $3 WHERE email = $1`
	deleteSQL = `DELETE FROM console_sessions WHERE email = $1`
	countSQL  = `SELECT COUNT(*) FROM console_sessions`
)

// Store implements sessions.Store on database/sql
type Store struct {
	db      *sql.DB
	nowFunc func() time.Time
	logger  zerolog.Logger
}

var _ sessions.Store = (*Store)(nil)

type Option func(*Store)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(db *sql.DB, options ...Option) *Store {
	s := &Store{
		db:      db,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Open connects to dsn with the lib/pq driver and verifies the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the sessions table when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, email string) (*sessions.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, getSQL, email).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	record := &sessions.Record{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}
	if record.DatabaseSessions == nil {
		record.DatabaseSessions = make(map[string]sessions.DatabaseSession)
	}
	return record, nil
}

func (s *Store) Save(ctx context.Context, email string, record *sessions.Record) error {
	data, err := encode(email, record)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertSQL, email, data, s.nowFunc().UTC()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, email string, record *sessions.Record) error {
	data, err := encode(email, record)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, updateSQL, email, data, s.nowFunc().UTC())
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQL, email); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Debug().Str("email", email).Msg("session record deleted")
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func encode(email string, record *sessions.Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("record cannot be nil")
	}
	c := record.Clone()
	c.Email = email
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}
	return data, nil
}
