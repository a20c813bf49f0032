package main

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-sql-console/internal/config"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/jrsteele09/go-sql-console/sessions/pgstore"
	"github.com/jrsteele09/go-sql-console/sessions/redisstore"
	"github.com/rs/zerolog"
)

// openStore builds the configured session store: the backend, optionally
// sealed at rest, optionally fronted by an LRU cache
func openStore(ctx context.Context, c config.Config, logger zerolog.Logger) (sessions.Store, func(), error) {
	var (
		store     sessions.Store
		closeFunc = func() {}
	)

	switch backend := c.GetSessionStore(); backend {
	case config.StoreMemory:
		store = sessions.NewInMemoryStore()
	case config.StoreRedis:
		client, err := redisstore.Connect(ctx, c.GetRedisAddr(), c.GetRedisPassword())
		if err != nil {
			return nil, nil, err
		}
		store = redisstore.New(client, redisstore.WithLogger(logger))
		closeFunc = func() { _ = client.Close() }
	case config.StorePostgres:
		db, err := pgstore.Open(ctx, c.GetPostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		pg := pgstore.New(db, pgstore.WithLogger(logger))
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		store = pg
		closeFunc = func() { _ = db.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown SESSION_STORE %q", backend)
	}

	if sealKey := c.GetSessionSealKey(); sealKey != "" {
		key, err := sessions.ParseSealKey(sealKey)
		if err != nil {
			closeFunc()
			return nil, nil, err
		}
		sealed, err := sessions.NewSealedStore(store, key)
		if err != nil {
			closeFunc()
			return nil, nil, err
		}
		store = sealed
	}

	if size := c.GetSessionCacheSize(); size > 0 {
		cached, err := sessions.NewCachedStore(store, size)
		if err != nil {
			closeFunc()
			return nil, nil, err
		}
		store = cached
	}

	logger.Info().Str("backend", c.GetSessionStore()).Bool("sealed", c.GetSessionSealKey() != "").Int("cache", c.GetSessionCacheSize()).Msg("session store ready")
	return store, closeFunc, nil
}
