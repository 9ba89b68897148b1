package repositories

import "context"

// TxFn runs with a transaction carried in ctx; repository calls made
// through that ctx join the transaction.
type TxFn func(ctx context.Context) error

// TransactionManager scopes multi-row writes, such as a status change
// plus its audit event or a content write plus its version row, to one
// transaction.
type TransactionManager interface {
	// ExecTx runs fn in a transaction, committing on nil and rolling
	// back on error or panic.
	ExecTx(ctx context.Context, fn TxFn) error
}
