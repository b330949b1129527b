package treesitter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeParser() *pooledParser { return &pooledParser{} }

func TestPoolReusesParsers(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	pool := newPoolWithFactory(2, func() *pooledParser {
		created.Add(1)
		return fakeParser()
	})
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	require.Equal(t, 2, pool.Capacity())
	require.Equal(t, int32(2), created.Load())

	first, err := pool.acquire(context.Background())
	require.NoError(t, err)
	second, err := pool.acquire(context.Background())
	require.NoError(t, err)
	require.NotSame(t, first, second)

	pool.release(first)
	pool.release(second)

	third, err := pool.acquire(context.Background())
	require.NoError(t, err)
	require.True(t, third == first || third == second)
	pool.release(third)
	require.Equal(t, int32(2), created.Load())
}

func TestPoolAcquireHonorsCancellation(t *testing.T) {
	t.Parallel()

	pool := newPoolWithFactory(1, fakeParser)
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	held, err := pool.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pp, err := pool.acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, pp)

	pool.release(held)
}

func TestPoolCloseUnblocksWaiters(t *testing.T) {
	t.Parallel()

	pool := newPoolWithFactory(1, fakeParser)
	held, err := pool.acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		_, err := pool.acquire(context.Background())
		acquired <- err
	}()

	closed := make(chan struct{})
	go func() {
		_ = pool.Close()
		close(closed)
	}()

	select {
	case err := <-acquired:
		require.ErrorIs(t, err, ErrPoolClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("acquire did not unblock after close")
	}

	select {
	case <-closed:
		t.Fatal("close returned before the holder released")
	case <-time.After(50 * time.Millisecond):
	}

	pool.release(held)

	select {
	case <-closed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("close did not finish after release")
	}

	_, err = pool.acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}

func TestNilPool(t *testing.T) {
	t.Parallel()

	var pool *Pool
	require.Zero(t, pool.Capacity())
	require.NoError(t, pool.Close())
	_, err := pool.acquire(context.Background())
	require.ErrorIs(t, err, ErrPoolClosed)
}
