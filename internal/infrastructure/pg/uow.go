package pg

import (
	"context"

	"ratehub/internal/application"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

func txFromCtx(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// snapshotLockKey names the transaction-scoped advisory lock taken by every
// unit of work, so snapshot read-modify-write is serialised across processes.
const snapshotLockKey int64 = 0x7261746568756221

// UnitOfWork makes a journal append and a snapshot replace commit together.
// Repos called with the ctx handed to fn join its transaction; a nested Do
// reuses the outer one.
type UnitOfWork struct {
	Pool *pgxpool.Pool
}

var _ application.UnitOfWork = (*UnitOfWork)(nil)

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromCtx(ctx) != nil {
		return fn(ctx)
	}
	return pgx.BeginTxFunc(ctx, u.Pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, snapshotLockKey); err != nil {
			return err
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
