package tx

import (
	"context"
	"database/sql"
	"slices"
)

type (
	ctxKey      struct{}
	lockKeysKey struct{}
)

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context so stores join it instead of
// using the pool directly.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// WithLockKeys names the resources a transaction must serialize on. Keys
// accumulate across calls.
func WithLockKeys(ctx context.Context, keys ...string) context.Context {
	if len(keys) == 0 {
		return ctx
	}
	merged := append(slices.Clone(LockKeys(ctx)), keys...)
	return context.WithValue(ctx, lockKeysKey{}, merged)
}

// LockKeys returns the sorted, de-duplicated lock keys carried by ctx.
// Acquiring locks in this order keeps concurrent transactions deadlock free.
func LockKeys(ctx context.Context) []string {
	keys, _ := ctx.Value(lockKeysKey{}).([]string)
	if len(keys) == 0 {
		return nil
	}
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
