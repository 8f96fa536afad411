package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func poolWith(t *testing.T, version string) *Pool {
	t.Helper()
	config := DefaultConfig()
	config.Endowments = map[string]interface{}{"version": version}
	pool, err := NewPool(config, 1)
	require.NoError(t, err)
	return pool
}

func TestReloadablePoolSwap(t *testing.T) {
	first := poolWith(t, "v1")
	pools := NewReloadablePool(first)
	defer pools.Close()

	var _ Executor = pools
	var _ Executor = first

	result, err := pools.Execute(context.Background(), "version", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", result.Value)

	require.NoError(t, pools.Swap(poolWith(t, "v2")))
	assert.True(t, first.Stats().Closed)
	assert.False(t, pools.Stats().Closed)

	result, err = pools.Execute(context.Background(), "version", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", result.Value)

	// Swapping in the same pool is a no-op.
	require.NoError(t, pools.Swap(pools.Current()))
	assert.False(t, pools.Stats().Closed)
}

func TestReloadablePoolInFlight(t *testing.T) {
	first := poolWith(t, "v1")
	pools := NewReloadablePool(first)
	defer pools.Close()

	held, err := first.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, pools.Swap(poolWith(t, "v2")))

	// The held sandbox still works and is closed on release.
	result, err := held.Execute(context.Background(), "version", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", result.Value)
	require.NoError(t, first.Release(held))

	_, err = held.Execute(context.Background(), "1", nil)
	assert.ErrorIs(t, err, ErrClosed)
}
