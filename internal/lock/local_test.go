package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()

	token, ok, err := locker.TryLock(ctx, "payment:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "payment:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "payment:1", "someone-else"))
	_, ok, _ = locker.TryLock(ctx, "payment:1", time.Minute)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "payment:1", token))
	_, ok, err = locker.TryLock(ctx, "payment:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }

	_, ok, err := locker.TryLock(ctx, "scheduler:job", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "scheduler:job", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerValidatesInput(t *testing.T) {
	locker := NewLocalLocker()
	_, _, err := locker.TryLock(context.Background(), "", time.Second)
	assert.ErrorIs(t, err, ErrLockKeyEmpty)
	_, _, err = locker.TryLock(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ErrLockTTLInvalid)
}
