// Package transactionrepo manages the append-only ledger of account transactions.
package transactionrepo

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
)

// RepoPGS facilitates transaction repository layer logic.
//
// There are no update or delete statements: ledger rows are immutable.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns transaction RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{db: db}
}

func scanTransaction(row interface{ Scan(...any) error }, t *domain.Transaction) error {
	return row.Scan(
		&t.ID,
		&t.AccountID,
		&t.Amount,
		&t.Kind,
		&t.Timestamp,
	)
}

const appendQuery = `
INSERT INTO
    transactions (account_id, amount, transaction_type)
VALUES
    ($1, $2, $3)
RETURNING id, account_id, amount, transaction_type, timestamp
`

// Append writes one ledger entry and returns it.
//
// Errors are always returned so that the enclosing unit of work rolls back the
// balance change it belongs to.
func (r *RepoPGS) Append(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.TransactionKind) (domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	row := dbpkg.Executor(ctx, r.db).QueryRowContext(ctx, appendQuery, accountID, amount, string(kind))

	var t domain.Transaction

	if err := scanTransaction(row, &t); err != nil {
		l.Error().Err(err).Msgf("Append(ctx, %d, %s, %s)", accountID, amount, kind)

		if dbpkg.Constraint(err) == "transactions_amount_check" {
			return domain.Transaction{}, domain.ErrInvalidAmount
		}

		return domain.Transaction{}, errorspkg.ErrInternal
	}

	return t, nil
}

const listByAccountQuery = `
SELECT
	id, account_id, amount, transaction_type, timestamp
FROM transactions
WHERE account_id = $1
ORDER BY timestamp DESC, id DESC
LIMIT $2 OFFSET $3
`

// ListByAccount returns the account transactions, newest first.
func (r *RepoPGS) ListByAccount(ctx context.Context, accountID int64, limit, offset int32) ([]domain.Transaction, error) {
	l := zerolog.Ctx(ctx)

	rows, err := dbpkg.Executor(ctx, r.db).QueryContext(ctx, listByAccountQuery, accountID, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Transaction{}

	for rows.Next() {
		var t domain.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, t)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}

	return items, nil
}

const countByAccountQuery = `SELECT count(*) FROM transactions WHERE account_id = $1`

// CountByAccount returns the number of transactions of the account.
func (r *RepoPGS) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	l := zerolog.Ctx(ctx)

	var n int64
	if err := dbpkg.Executor(ctx, r.db).QueryRowContext(ctx, countByAccountQuery, accountID).Scan(&n); err != nil {
		l.Error().Err(err).Send()
		return 0, errorspkg.ErrInternal
	}

	return n, nil
}
