package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetbook/internal/allocation/store"
	dErrors "fleetbook/pkg/domain-errors"
	txcontext "fleetbook/pkg/platform/tx"
)

func TestShardedTx_SelectShards(t *testing.T) {
	tx := NewShardedTx(store.NewInMemory(), 0)

	t.Run("no keys falls back to one shard", func(t *testing.T) {
		assert.Equal(t, []int{0}, tx.selectShards(nil))
	})

	t.Run("shards are sorted and unique", func(t *testing.T) {
		shards := tx.selectShards([]string{"vehicle:10:2099-01-10", "employee:1:2099-01-10", "employee:1:2099-01-10"})
		require.NotEmpty(t, shards)
		assert.LessOrEqual(t, len(shards), 2)
		for i := 1; i < len(shards); i++ {
			assert.Less(t, shards[i-1], shards[i])
		}
	})
}

func TestShardedTx_RunInTx(t *testing.T) {
	t.Run("cancelled context is a timeout", func(t *testing.T) {
		tx := NewShardedTx(store.NewInMemory(), 0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		err := tx.RunInTx(ctx, func(context.Context, Store) error {
			called = true
			return nil
		})
		assert.False(t, called)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("default timeout bounds the transaction", func(t *testing.T) {
		tx := NewShardedTx(store.NewInMemory(), 20*time.Millisecond)
		err := tx.RunInTx(context.Background(), func(ctx context.Context, _ Store) error {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(20*time.Millisecond), deadline, 20*time.Millisecond)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("same key serializes", func(t *testing.T) {
		tx := NewShardedTx(store.NewInMemory(), time.Second)
		ctx := txcontext.WithLockKeys(context.Background(), "employee:1:2099-01-10")

		var mu sync.Mutex
		inside, maxInside := 0, 0
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = tx.RunInTx(ctx, func(context.Context, Store) error {
					mu.Lock()
					inside++
					maxInside = max(maxInside, inside)
					mu.Unlock()
					time.Sleep(time.Millisecond)
					mu.Lock()
					inside--
					mu.Unlock()
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxInside)
	})

	t.Run("errors from fn are returned unchanged", func(t *testing.T) {
		tx := NewShardedTx(store.NewInMemory(), 0)
		want := dErrors.New(dErrors.CodeNoChange, "No changes detected.")
		err := tx.RunInTx(context.Background(), func(context.Context, Store) error { return want })
		assert.Same(t, want, err)
	})
}
