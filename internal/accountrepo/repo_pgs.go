// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
)

// DefaultLockTimeout bounds the wait for an account row lock.
const DefaultLockTimeout = 3 * time.Second

// RepoPGS facilitates account repository layer logic.
//
// Statements run inside the transaction carried by the context when there is one.
type RepoPGS struct {
	db          dbpkg.SQLInterface
	lockTimeout time.Duration
}

// NewRepoPGS returns account RepoPGS. A zero lockTimeout means DefaultLockTimeout.
func NewRepoPGS(db dbpkg.SQLInterface, lockTimeout time.Duration) *RepoPGS {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &RepoPGS{
		db:          db,
		lockTimeout: lockTimeout,
	}
}

func scanAccount(row interface{ Scan(...any) error }, a *domain.Account) error {
	return row.Scan(
		&a.ID,
		&a.Owner,
		&a.HolderName,
		&a.Balance,
		&a.Version,
		&a.CreatedAt,
	)
}

const createQuery = `
INSERT INTO
    accounts (owner, account_holder_name, balance)
VALUES
    ($1, $2, $3)
RETURNING id, owner, account_holder_name, balance, version, created_at
`

// Create creates the account and then returns it.
func (r *RepoPGS) Create(ctx context.Context, owner, holderName string, balance decimal.Decimal) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := dbpkg.Executor(ctx, r.db).QueryRowContext(ctx, createQuery, owner, holderName, balance)

	var a domain.Account

	if err := scanAccount(row, &a); err != nil {
		l.Error().Err(err).Send()

		switch dbpkg.Constraint(err) {
		case "accounts_balance_check":
			return domain.Account{}, domain.ErrNegativeBalance
		case "accounts_holder_name_check":
			return domain.Account{}, domain.ErrInvalidHolderName
		}

		return domain.Account{}, errorspkg.ErrInternal
	}

	return a, nil
}

const getQuery = `
SELECT
	id, owner, account_holder_name, balance, version, created_at
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id without locking it.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := dbpkg.Executor(ctx, r.db).QueryRowContext(ctx, getQuery, id)

	var a domain.Account

	if err := scanAccount(row, &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, errorspkg.ErrInternal
	}

	return a, nil
}

const getForUpdateQuery = `
SELECT
	id, owner, account_holder_name, balance, version, created_at
FROM accounts
WHERE id = $1
FOR UPDATE
`

// GetForUpdate returns the account with the given id holding a row write lock
// until the surrounding transaction ends.
//
// The wait for the lock is bounded by the repository lock timeout.
func (r *RepoPGS) GetForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	tx, ok := dbpkg.TxFromContext(ctx)
	if !ok {
		l.Error().Err(dbpkg.ErrNoTx).Int64("account_id", id).Send()
		return domain.Account{}, dbpkg.ErrNoTx
	}

	// SET does not accept placeholders, the value is a formatted integer.
	setLockTimeout := fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, setLockTimeout); err != nil {
		l.Error().Err(err).Send()
		return domain.Account{}, errorspkg.ErrInternal
	}

	row := tx.QueryRowContext(ctx, getForUpdateQuery, id)

	var a domain.Account

	if err := scanAccount(row, &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		if dbpkg.ErrorCode(err) == dbpkg.CodeLockNotAvailable {
			l.Warn().Err(err).Int64("account_id", id).Msg("account lock timeout")
			return domain.Account{}, domain.ErrLockTimeout
		}

		l.Error().Err(err).Send()

		return domain.Account{}, errorspkg.ErrInternal
	}

	return a, nil
}

const saveQuery = `
UPDATE accounts
SET balance = $1, version = version + 1
WHERE id = $2 AND version = $3
RETURNING id, owner, account_holder_name, balance, version, created_at
`

// Save persists the account balance if the stored version still equals expectedVersion.
//
// It returns domain.ErrVersionConflict when another writer committed first.
func (r *RepoPGS) Save(ctx context.Context, account domain.Account, expectedVersion int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := dbpkg.Executor(ctx, r.db).QueryRowContext(ctx, saveQuery, account.Balance, account.ID, expectedVersion)

	var a domain.Account

	if err := scanAccount(row, &a); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrVersionConflict
		}

		l.Error().Err(err).Send()

		if dbpkg.Constraint(err) == "accounts_balance_check" {
			return domain.Account{}, domain.ErrInsufficientFunds
		}

		return domain.Account{}, errorspkg.ErrInternal
	}

	return a, nil
}

const deleteQuery = `
DELETE FROM accounts
WHERE id = $1
`

// Delete removes the account with the given id.
func (r *RepoPGS) Delete(ctx context.Context, id int64) error {
	l := zerolog.Ctx(ctx)

	res, err := dbpkg.Executor(ctx, r.db).ExecContext(ctx, deleteQuery, id)
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return errorspkg.ErrInternal
	}

	if n == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

var sortColumns = map[string]string{
	domain.SortByID:         "id",
	"holderName":            "account_holder_name",
	domain.SortByHolderName: "account_holder_name",
	domain.SortByBalance:    "balance",
}

// orderBy returns a whitelisted ORDER BY clause, defaulting to ascending id.
func orderBy(sortBy, sortDir string) string {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = "id"
	}

	dir := "ASC"
	if strings.EqualFold(sortDir, domain.SortDesc) {
		dir = "DESC"
	}

	if column == "id" {
		return "ORDER BY id " + dir
	}

	return "ORDER BY " + column + " " + dir + ", id " + dir
}

const listQuery = `
SELECT
	id, owner, account_holder_name, balance, version, created_at
FROM accounts
%s
LIMIT $1 OFFSET $2
`

// List returns the specified number of accounts in the requested order.
func (r *RepoPGS) List(ctx context.Context, limit, offset int32, sortBy, sortDir string) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	query := fmt.Sprintf(listQuery, orderBy(sortBy, sortDir))

	rows, err := dbpkg.Executor(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrInternal
	}
	defer rows.Close()

	items := []domain.Account{}

	for rows.Next() {
		var a domain.Account
		if err := scanAccount(rows, &a); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrInternal
		}

		items = append(items, a)
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

const countQuery = `SELECT count(*) FROM accounts`

// Count returns the total number of accounts.
func (r *RepoPGS) Count(ctx context.Context) (int64, error) {
	l := zerolog.Ctx(ctx)

	var n int64
	if err := dbpkg.Executor(ctx, r.db).QueryRowContext(ctx, countQuery).Scan(&n); err != nil {
		l.Error().Err(err).Send()
		return 0, errorspkg.ErrInternal
	}

	return n, nil
}
