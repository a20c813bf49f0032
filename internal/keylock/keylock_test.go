package keylock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-sql-console/internal/keylock"
	"github.com/stretchr/testify/require"
)

func TestLocker_SerialisesSameKey(t *testing.T) {
	locker := keylock.New()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "a@x.com")
			require.NoError(t, err)
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Zero(t, locker.Len())
}

func TestLocker_DifferentKeysIndependent(t *testing.T) {
	locker := keylock.New()
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "a@x.com")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(ctx, "b@x.com")
	require.NoError(t, err)
	unlockB()
}

func TestLocker_ContextCancelled(t *testing.T) {
	locker := keylock.New()

	unlock, err := locker.Lock(context.Background(), "a@x.com")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "a@x.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	require.Zero(t, locker.Len())
}
