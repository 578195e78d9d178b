package service

import (
	"context"
	"slices"
	"sync"
	"time"

	dErrors "fleetbook/pkg/domain-errors"
	txcontext "fleetbook/pkg/platform/tx"
)

// StoreTx provides a transactional boundary for allocation mutations.
// Implementations serialize on the lock keys carried by ctx
// (pkg/platform/tx.WithLockKeys) and hand fn a store bound to the transaction.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// numAllocationShards spreads (employee, date) and (vehicle, date) keys over
// independent mutexes so unrelated bookings do not contend.
const numAllocationShards = 128

// DefaultTxTimeout bounds a transaction when ctx carries no deadline.
const DefaultTxTimeout = 5 * time.Second

// ShardedTx serializes in-memory transactions per lock key.
type ShardedTx struct {
	shards  [numAllocationShards]sync.Mutex
	store   Store
	timeout time.Duration
}

// NewShardedTx wraps store. A zero timeout uses DefaultTxTimeout.
func NewShardedTx(store Store, timeout time.Duration) *ShardedTx {
	return &ShardedTx{store: store, timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// ascending shard order keeps multi-key transactions deadlock free
	shards := t.selectShards(txcontext.LockKeys(ctx))
	for _, shard := range shards {
		t.shards[shard].Lock()
	}
	defer func() {
		for i := len(shards) - 1; i >= 0; i-- {
			t.shards[shards[i]].Unlock()
		}
	}()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx, t.store)
}

// selectShards maps keys to a sorted, de-duplicated shard list. Without keys
// the transaction falls back to shard 0.
func (t *ShardedTx) selectShards(keys []string) []int {
	if len(keys) == 0 {
		return []int{0}
	}
	shards := make([]int, 0, len(keys))
	for _, key := range keys {
		shards = append(shards, int(hashLockKey(key)%numAllocationShards))
	}
	slices.Sort(shards)
	return slices.Compact(shards)
}

// hashLockKey is FNV-1a.
func hashLockKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
