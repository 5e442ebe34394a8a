package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an infra-defined transaction handle (pgx.Tx for Postgres). Repositories
// must accept a nil Tx and fall back to the non-transactional path.
type Tx interface{}

// TransactionManager runs fn inside a database transaction, committing when fn
// returns nil and rolling back otherwise.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		return history.Save(ctx, tx, rec)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
