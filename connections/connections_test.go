package connections_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-sql-console/connections"
	internalerrors "github.com/jrsteele09/go-sql-console/internal/errors"
	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/jrsteele09/go-sql-console/token/jwt"
	"github.com/jrsteele09/go-sql-console/token/keys"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func validRequest() connections.OpenRequest {
	return connections.OpenRequest{
		InstanceType: connections.InstancePostgres,
		Host:         "db.internal",
		Database:     "sales",
		Username:     "reader",
		Password:     "secret",
	}
}

func TestOpenRequest_Validate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	tests := map[string]func(r *connections.OpenRequest){
		"unknown instance":  func(r *connections.OpenRequest) { r.InstanceType = "mysql" },
		"missing host":      func(r *connections.OpenRequest) { r.Host = "" },
		"bad host":          func(r *connections.OpenRequest) { r.Host = "db internal;x" },
		"missing database":  func(r *connections.OpenRequest) { r.Database = "" },
		"missing username":  func(r *connections.OpenRequest) { r.Username = "" },
		"port out of range": func(r *connections.OpenRequest) { r.Port = 70000 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := validRequest()
			mutate(&r)
			require.ErrorIs(t, r.Validate(), internalerrors.ErrInvalidRequest)
		})
	}
}

func TestOpenRequest_ConnectionString(t *testing.T) {
	postgres, err := validRequest().ConnectionString()
	require.NoError(t, err)
	require.Equal(t, "Host=db.internal;Port=5432;Database=sales;Username=reader;Password=secret", postgres)

	sqlserver := validRequest()
	sqlserver.InstanceType = connections.InstanceSQLServer
	sqlserver.Port = 14330
	sqlserver.TrustServerCertificate = true
	rendered, err := sqlserver.ConnectionString()
	require.NoError(t, err)
	require.Equal(t, "Server=db.internal,14330;Database=sales;User Id=reader;Password=secret;TrustServerCertificate=true", rendered)

	quoted := validRequest()
	quoted.Password = `p;a"ss`
	rendered, err = quoted.ConnectionString()
	require.NoError(t, err)
	require.Contains(t, rendered, `Password="p;a""ss"`)
}

func newManager(t *testing.T) (*connections.Manager, *sessions.InMemoryStore, *jwt.Codec) {
	t.Helper()
	kp, err := keys.GenerateRSAKeyPair("connections-test", 2048)
	require.NoError(t, err)
	codec := jwt.NewCodec(keys.NewKeyPairSigner(kp), "sql-console", "sql-console-api",
		jwt.WithLifetimes(15*time.Minute, time.Hour))
	store := sessions.NewInMemoryStore()
	return connections.NewManager(store, codec, connections.WithLogger(zerolog.Nop())), store, codec
}

func TestManager_OpenAndClose(t *testing.T) {
	ctx := context.Background()
	manager, store, codec := newManager(t)
	require.NoError(t, store.Save(ctx, "a@x.com", sessions.NewRecord("a@x.com")))

	pair, err := manager.Open(ctx, "a@x.com", validRequest())
	require.NoError(t, err)
	require.Equal(t, jwt.Validation{Valid: true}, codec.ValidateToken(pair.SessionToken))

	record, err := store.Get(ctx, "a@x.com")
	require.NoError(t, err)
	binding, ok := record.Binding(pair.SessionToken)
	require.True(t, ok)
	require.Equal(t, pair.RefreshToken, binding.RefreshToken)
	require.Contains(t, binding.ConnectionString, "Host=db.internal")

	summary, err := manager.Describe(pair.SessionToken)
	require.NoError(t, err)
	require.Equal(t, connections.Summary{InstanceType: connections.InstancePostgres, Host: "db.internal"}, summary)

	require.NoError(t, manager.Close(ctx, "a@x.com", pair.SessionToken))
	record, err = store.Get(ctx, "a@x.com")
	require.NoError(t, err)
	require.Empty(t, record.DatabaseSessions)

	require.ErrorIs(t, manager.Close(ctx, "a@x.com", pair.SessionToken), internalerrors.ErrSessionKeyNotFound)
}

func TestManager_OpenRequiresRecord(t *testing.T) {
	manager, _, _ := newManager(t)
	_, err := manager.Open(context.Background(), "a@x.com", validRequest())
	require.ErrorIs(t, err, sessions.ErrSessionNotFound)
}

func TestManager_OpenRejectsInvalidRequest(t *testing.T) {
	ctx := context.Background()
	manager, store, _ := newManager(t)
	require.NoError(t, store.Save(ctx, "a@x.com", sessions.NewRecord("a@x.com")))

	_, err := manager.Open(ctx, "a@x.com", connections.OpenRequest{InstanceType: "oracle"})
	require.ErrorIs(t, err, internalerrors.ErrInvalidRequest)

	record, err := store.Get(ctx, "a@x.com")
	require.NoError(t, err)
	require.Empty(t, record.DatabaseSessions)
}
