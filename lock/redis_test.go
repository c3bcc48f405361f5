package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnz/tradebook"
	"github.com/etnz/tradebook/storetest"
)

func newClient(t *testing.T, mr *miniredis.Miniredis) *goredislib.Client {
	t.Helper()
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedis_TryLock(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	a := New(newClient(t, mr))
	b := New(newClient(t, mr))

	unlock, err := a.TryLock(ctx, "k2", "k1", "k2")
	require.NoError(t, err)
	assert.True(t, mr.Exists("k1"))
	assert.True(t, mr.Exists("k2"))

	_, err = b.TryLock(ctx, "k3", "k2")
	assert.ErrorIs(t, err, tradebook.ErrLocked)
	assert.False(t, mr.Exists("k3"), "keys acquired before a busy one are released")

	unlock()
	unlock()
	assert.False(t, mr.Exists("k1"))

	unlock, err = b.TryLock(ctx, "k3", "k2")
	require.NoError(t, err)
	unlock()
}

func TestRedis_Expiry(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	a := New(newClient(t, mr), WithExpiry(time.Second))
	b := New(newClient(t, mr))

	_, err := a.TryLock(ctx, "k")
	require.NoError(t, err)
	_, err = b.TryLock(ctx, "k")
	require.ErrorIs(t, err, tradebook.ErrLocked)

	mr.FastForward(2 * time.Second)
	unlock, err := b.TryLock(ctx, "k")
	require.NoError(t, err, "an abandoned lock expires")
	unlock()
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	r := New(newClient(t, mr))
	mr.Close()

	_, err := r.TryLock(context.Background(), "k")
	assert.Error(t, err)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := Dial(context.Background(), mr.Addr())
	require.NoError(t, err)
	unlock, err := r.TryLock(context.Background(), "k")
	require.NoError(t, err)
	unlock()

	_, err = Dial(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)
}

func TestEngineReportsBusyTransaction(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	e := tradebook.NewEngine(tradebook.NewMemoryStore(), tradebook.WithLocker(New(newClient(t, mr))))
	created, err := e.Create(ctx, storetest.Trade("t1", "B1", 10, "2024-03-01"))
	require.NoError(t, err)

	other := New(newClient(t, mr))
	unlock, err := other.TryLock(ctx, tradebook.LockKey(storetest.Tenant, "t1"))
	require.NoError(t, err)

	_, err = e.Amend(ctx, created)
	var conflict *tradebook.VersionConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.True(t, conflict.Locked)
	assert.True(t, tradebook.IsRetryable(err))

	unlock()
	amended, err := e.Amend(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, 2, amended.Version)
}
