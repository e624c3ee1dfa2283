package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerMutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "sync:aws_cost_sync", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "sync:aws_cost_sync", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different job locks independently.
	_, ok, err = locker.TryLock(ctx, "sync:gcp_cost_sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, locker.Release(ctx, "sync:aws_cost_sync", token))

	_, ok, err = locker.TryLock(ctx, "sync:aws_cost_sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerReleaseRequiresMatchingToken(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "sync:aws_cost_sync", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// A stale token must not release the current holder.
	require.NoError(t, locker.Release(ctx, "sync:aws_cost_sync", "stale-token"))

	_, ok, err = locker.TryLock(ctx, "sync:aws_cost_sync", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "sync:aws_cost_sync", token))
}

func TestLocalLockerExpiredLockIsReacquirable(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "sync:huawei_cost_sync", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	_, ok, err = locker.TryLock(ctx, "sync:huawei_cost_sync", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerValidatesInput(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	_, _, err := locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)

	_, _, err = locker.TryLock(ctx, "sync:aws_cost_sync", 0)
	assert.Error(t, err)
}
