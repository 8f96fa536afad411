package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireRelease(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2)
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	rt, err := pool.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Size: 2, Available: 1, InUse: 1}, pool.Stats())

	result, err := rt.Execute(ctx, "globalThis.dirty = true; 42", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 42, result.Value)

	require.NoError(t, pool.Release(rt))
	assert.Equal(t, 2, pool.Stats().Available)

	// Released sandboxes come back clean.
	for i := 0; i < 2; i++ {
		result, err := pool.Execute(ctx, "typeof dirty", nil)
		require.NoError(t, err)
		assert.Equal(t, "undefined", result.Value)
	}
}

func TestPoolExecuteConcurrently(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 2)
	require.NoError(t, err)
	defer pool.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Execute(context.Background(), "Math.sqrt(16)", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestPoolAcquireTimeout(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1, WithAcquireTimeout(20*time.Millisecond))
	require.NoError(t, err)
	defer pool.Close()

	rt, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(rt)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoolClose(t *testing.T) {
	pool, err := NewPool(DefaultConfig(), 1)
	require.NoError(t, err)

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.True(t, pool.Stats().Closed)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPoolRejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.Policy = &Policy{Globals: []string{"missing"}}

	_, err := NewPool(config, 2)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
