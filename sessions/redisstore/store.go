// Package redisstore keeps session records in Redis as JSON documents.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultPrefix = "sqlconsole"

// Store implements sessions.Store on top of a Redis client. Each record lives
// under <prefix>:session:<email> and the set <prefix>:sessions indexes them.
type Store struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
}

var _ sessions.Store = (*Store)(nil)

type Option func(*Store)

// WithPrefix namespaces all keys written by the store
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(client redis.UniversalClient, options ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Connect creates a client for addr and checks it answers PING
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) recordKey(email string) string {
	return s.prefix + ":session:" + email
}

func (s *Store) indexKey() string {
	return s.prefix + ":sessions"
}

func (s *Store) Get(ctx context.Context, email string) (*sessions.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
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

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(email), data, 0)
		pipe.SAdd(ctx, s.indexKey(), email)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, email string, record *sessions.Record) error {
	data, err := encode(email, record)
	if err != nil {
		return err
	}

	updated, err := s.client.SetXX(ctx, s.recordKey(email), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis update session: %w", err)
	}
	if !updated {
		return sessions.ErrSessionNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, email string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(email))
		pipe.SRem(ctx, s.indexKey(), email)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	s.logger.Debug().Str("email", email).Msg("session record deleted")
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count sessions: %w", err)
	}
	return int(n), nil
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
