package authflowrepo_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-sql-console/server/authflowrepo"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepo_TakeIsSingleUse(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	now := time.Now()

	require.NoError(t, repo.Upsert("state-1", &authflowrepo.LoginState{
		CodeVerifier: "verifier",
		Nonce:        "nonce",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Minute),
	}))

	state, err := repo.Take("state-1")
	require.NoError(t, err)
	require.Equal(t, "verifier", state.CodeVerifier)
	require.Equal(t, "nonce", state.Nonce)

	_, err = repo.Take("state-1")
	require.ErrorIs(t, err, authflowrepo.ErrStateNotFound)
}

func TestInMemoryRepo_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	repo := authflowrepo.NewInMemoryRepo().WithNowFunc(func() time.Time { return now })

	require.NoError(t, repo.Upsert("old", &authflowrepo.LoginState{CreatedAt: now, ExpiresAt: now.Add(time.Minute)}))
	now = now.Add(time.Minute)

	_, err := repo.Take("old")
	require.ErrorIs(t, err, authflowrepo.ErrStateExpired)

	require.NoError(t, repo.Upsert("stale", &authflowrepo.LoginState{CreatedAt: now, ExpiresAt: now.Add(time.Second)}))
	now = now.Add(time.Hour)
	require.NoError(t, repo.Upsert("fresh", &authflowrepo.LoginState{CreatedAt: now, ExpiresAt: now.Add(time.Minute)}))
	require.Equal(t, 1, repo.Len())
}

func TestInMemoryRepo_CopiesState(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	state := &authflowrepo.LoginState{ReturnURL: "/a"}
	require.NoError(t, repo.Upsert("s", state))
	state.ReturnURL = "/b"

	stored, err := repo.Take("s")
	require.NoError(t, err)
	require.Equal(t, "/a", stored.ReturnURL)
}

func TestInMemoryRepo_EmptyState(t *testing.T) {
	repo := authflowrepo.NewInMemoryRepo()
	require.Error(t, repo.Upsert("", &authflowrepo.LoginState{}))
	require.Error(t, repo.Upsert("s", nil))
	_, err := repo.Take("")
	require.Error(t, err)
	require.Error(t, repo.Delete(""))
	require.NoError(t, repo.Delete("missing"))
}
