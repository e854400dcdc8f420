package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager executes a function within a storage transaction,
// passing the transaction handle through the opaque Tx argument.
//
// Keeping the handle opaque lets use cases compose repository calls into one
// atomic unit (clear-default-then-set-default, lock-then-rewrite-snapshot)
// without leaking driver types into their signatures. Repositories accept a
// nil Tx for the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
