package dbpkg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/pkg/errorspkg"
)

// ErrNoTx indicates that a statement requiring a transaction was run outside of one.
var ErrNoTx = errors.New("no transaction in context")

type txKey struct{}

// WithTx returns a copy of ctx carrying the given transaction.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Executor returns the transaction carried by ctx or db when there is none.
func Executor(ctx context.Context, db SQLInterface) SQLInterface {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}

	return db
}

// TxManager runs units of work inside database transactions.
type TxManager struct {
	db *sql.DB
}

// NewTxManager returns TxManager for the given connection pool.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// WithinTx executes fn within a database transaction.
//
// The transaction is committed when fn returns nil and rolled back otherwise, so
// row locks taken inside fn are released when WithinTx returns. A ctx that
// already carries a transaction joins it instead of starting a new one.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	l := zerolog.Ctx(ctx)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Msg("cannot begin transaction")
		return errorspkg.ErrInternal
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			l.Error().Err(rbErr).Msg("cannot rollback transaction")
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Msg("cannot commit transaction")
		return errorspkg.ErrInternal
	}

	return nil
}
