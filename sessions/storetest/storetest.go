// Package storetest holds behaviour tests shared by every sessions.Store implementation.
package storetest

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-sql-console/sessions"
	"github.com/stretchr/testify/require"
)

// Run exercises the Store contract against stores produced by newStore.
// Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) sessions.Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "nobody@x.com")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})

	t.Run("save and get", func(t *testing.T) {
		store := newStore(t)
		record := sampleRecord("a@x.com")
		require.NoError(t, store.Save(ctx, "a@x.com", record))

		got, err := store.Get(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, "T1", got.IdentityToken)
		require.Equal(t, "refresh-1", got.IdentityRefreshToken)
		require.Equal(t, "Host=h;Database=d", got.DatabaseSessions["S1"].ConnectionString)
		require.Equal(t, "R1", got.DatabaseSessions["S1"].RefreshToken)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("save replaces", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "a@x.com", sampleRecord("a@x.com")))

		replacement := sessions.NewRecord("a@x.com")
		replacement.IdentityToken = "T2"
		require.NoError(t, store.Save(ctx, "a@x.com", replacement))

		got, err := store.Get(ctx, "a@x.com")
		require.NoError(t, err)
		require.Equal(t, "T2", got.IdentityToken)
		require.Empty(t, got.DatabaseSessions)
	})

	t.Run("update missing", func(t *testing.T) {
		store := newStore(t)
		err := store.Update(ctx, "a@x.com", sampleRecord("a@x.com"))
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)

		_, err = store.Get(ctx, "a@x.com")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)
	})

	t.Run("update existing", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "a@x.com", sampleRecord("a@x.com")))

		got, err := store.Get(ctx, "a@x.com")
		require.NoError(t, err)
		got.Unbind("S1")
		got.Bind("S2", sessions.DatabaseSession{ConnectionString: "Host=h;Database=d", RefreshToken: "R2"})
		require.NoError(t, store.Update(ctx, "a@x.com", got))

		updated, err := store.Get(ctx, "a@x.com")
		require.NoError(t, err)
		_, hasOld := updated.Binding("S1")
		require.False(t, hasOld)
		binding, hasNew := updated.Binding("S2")
		require.True(t, hasNew)
		require.Equal(t, "Host=h;Database=d", binding.ConnectionString)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := newStore(t)
		record := sampleRecord("a@x.com")
		require.NoError(t, store.Save(ctx, "a@x.com", record))
		record.DatabaseSessions["S9"] = sessions.DatabaseSession{ConnectionString: "mutated"}

		got, err := store.Get(ctx, "a@x.com")
		require.NoError(t, err)
		got.DatabaseSessions["S8"] = sessions.DatabaseSession{ConnectionString: "mutated"}

		again, err := store.Get(ctx, "a@x.com")
		require.NoError(t, err)
		require.Len(t, again.DatabaseSessions, 1)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Save(ctx, "a@x.com", sampleRecord("a@x.com")))
		require.NoError(t, store.Delete(ctx, "a@x.com"))
		require.NoError(t, store.Delete(ctx, "a@x.com"))

		_, err := store.Get(ctx, "a@x.com")
		require.ErrorIs(t, err, sessions.ErrSessionNotFound)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		require.Zero(t, count)
	})
}

func sampleRecord(email string) *sessions.Record {
	record := sessions.NewRecord(email)
	record.IdentityAccessToken = "access-1"
	record.IdentityToken = "T1"
	record.IdentityRefreshToken = "refresh-1"
	record.Bind("S1", sessions.DatabaseSession{ConnectionString: "Host=h;Database=d", RefreshToken: "R1"})
	return record
}
