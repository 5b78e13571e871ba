package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres). Repositories accept NoTX for the non-transactional path.
type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside a database transaction and passes the
// handle down so repositories can join it (and take row locks).
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		sub, err := subs.FindByID(ctx, tx, id) // SELECT ... FOR UPDATE
//		...
//	})
//
// fn returning an error rolls the transaction back.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

// AdvisoryLocker serializes work on a key inside the current transaction.
// The Postgres implementation uses pg_advisory_xact_lock, released on commit/rollback.
type AdvisoryLocker interface {
	LockKey(ctx context.Context, tx Tx, key string) error
}
