package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	allocationservice "fleetbook/internal/allocation/service"
	allocationstore "fleetbook/internal/allocation/store"
	dErrors "fleetbook/pkg/domain-errors"
	txcontext "fleetbook/pkg/platform/tx"
)

// advisoryLockSQL serializes transactions on the same lock key for the
// lifetime of the surrounding transaction.
const advisoryLockSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

type allocationPostgresTx struct {
	db      *sql.DB
	store   *allocationstore.PostgresStore
	timeout time.Duration
}

func newAllocationPostgresTx(db *sql.DB, store *allocationstore.PostgresStore, timeout time.Duration) *allocationPostgresTx {
	return &allocationPostgresTx{db: db, store: store, timeout: timeout}
}

func (t *allocationPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store allocationservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = allocationservice.DefaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return txError(ctx, err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, key := range txcontext.LockKeys(ctx) {
		if _, err := tx.ExecContext(ctx, advisoryLockSQL, key); err != nil {
			return txError(ctx, err, "failed to acquire allocation lock")
		}
	}

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return txError(ctx, err, "failed to commit transaction")
	}
	return nil
}

func txError(ctx context.Context, err error, msg string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeStoreFailure, msg)
}
