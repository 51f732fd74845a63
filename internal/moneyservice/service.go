// Package moneyservice is the money movement engine: deposits, withdrawals and
// transfers that mutate account balances and append the matching ledger entries.
//
// Single-account operations use optimistic version checks with a bounded retry
// loop. Transfers lock both rows pessimistically in ascending id order so that
// mirrored transfers between the same pair of accounts cannot deadlock.
package moneyservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// AccountRepo provides account access needed by the money service.
//
//go:generate mockgen -source service.go -destination service_mock.go -package moneyservice
type AccountRepo interface {
	Get(ctx context.Context, id int64) (domain.Account, error)
	GetForUpdate(ctx context.Context, id int64) (domain.Account, error)
	Save(ctx context.Context, account domain.Account, expectedVersion int64) (domain.Account, error)
}

// TransactionRepo provides ledger access needed by the money service.
type TransactionRepo interface {
	Append(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.TransactionKind) (domain.Transaction, error)
	ListByAccount(ctx context.Context, accountID int64, limit, offset int32) ([]domain.Transaction, error)
	CountByAccount(ctx context.Context, accountID int64) (int64, error)
}

// TxManager runs fn as one atomic unit of work.
//
// Repositories called with the ctx passed to fn take part in the unit of work.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Metrics records engine outcomes.
type Metrics interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
	IncRetry(operation string)
}

// Operation names used in logs, errors and metrics.
const (
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
	OpTransfer = "transfer"
)

// Default retry policy of single-account operations.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 10 * time.Millisecond
)

// Config tunes the engine.
type Config struct {
	// MaxAttempts is the total number of optimistic attempts, first one included.
	MaxAttempts int
	// BaseDelay is the backoff unit between attempts. Zero disables waiting.
	BaseDelay time.Duration
	// Metrics may be nil.
	Metrics Metrics
}

// Service facilitates money movement logic.
type Service struct {
	tm           TxManager
	accounts     AccountRepo
	transactions TransactionRepo
	maxAttempts  int
	baseDelay    time.Duration
	metrics      Metrics
}

// New returns money service struct to manage balance mutations.
func New(tm TxManager, ar AccountRepo, tr TransactionRepo, config Config) *Service {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	if config.BaseDelay < 0 {
		config.BaseDelay = 0
	}

	if config.Metrics == nil {
		config.Metrics = noopMetrics{}
	}

	return &Service{
		tm:           tm,
		accounts:     ar,
		transactions: tr,
		maxAttempts:  config.MaxAttempts,
		baseDelay:    config.BaseDelay,
		metrics:      config.Metrics,
	}
}

// Deposit adds amount to the account balance and records a DEPOSIT transaction.
func (s *Service) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	start := time.Now()

	account, err := s.mutate(ctx, OpDeposit, accountID, amount, domain.Deposit,
		func(balance decimal.Decimal) (decimal.Decimal, error) {
			return balance.Add(amount), nil
		})

	s.metrics.ObserveOperation(OpDeposit, Outcome(err), time.Since(start))

	return account, err
}

// Withdraw subtracts amount from the account balance and records a WITHDRAW transaction.
//
// It fails with domain.ErrInsufficientFunds, without any mutation, when the
// balance is lower than amount.
func (s *Service) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	start := time.Now()

	account, err := s.mutate(ctx, OpWithdraw, accountID, amount, domain.Withdraw,
		func(balance decimal.Decimal) (decimal.Decimal, error) {
			if balance.LessThan(amount) {
				return decimal.Decimal{}, domain.ErrInsufficientFunds
			}

			return balance.Sub(amount), nil
		})

	s.metrics.ObserveOperation(OpWithdraw, Outcome(err), time.Since(start))

	return account, err
}

// mutate applies a balance change to one account with optimistic concurrency.
//
// Every attempt reloads the account, recomputes the balance and performs the
// conditional save and the ledger append in a fresh unit of work. Only a
// version conflict is retried.
func (s *Service) mutate(
	ctx context.Context,
	op string,
	accountID int64,
	amount decimal.Decimal,
	kind domain.TransactionKind,
	apply func(balance decimal.Decimal) (decimal.Decimal, error),
) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	var updated domain.Account

	attempt := func() error {
		err := s.tm.WithinTx(ctx, func(ctx context.Context) error {
			account, err := s.accounts.Get(ctx, accountID)
			if err != nil {
				return err
			}

			newBalance, err := apply(account.Balance)
			if err != nil {
				return err
			}

			expectedVersion := account.Version
			account.Balance = newBalance

			updated, err = s.accounts.Save(ctx, account, expectedVersion)
			if err != nil {
				return err
			}

			_, err = s.transactions.Append(ctx, accountID, amount, kind)

			return err
		})

		if err != nil && !errors.Is(err, domain.ErrVersionConflict) {
			return backoff.Permanent(err)
		}

		return err
	}

	retries := 0
	notify := func(err error, wait time.Duration) {
		retries++
		s.metrics.IncRetry(op)

		l.Warn().
			Err(err).
			Str("operation", op).
			Int64("account_id", accountID).
			Int("attempt", retries).
			Dur("backoff", wait).
			Msg("optimistic conflict")
	}

	err := backoff.RetryNotify(attempt, retryPolicy(ctx, s.baseDelay, s.maxAttempts), notify)
	if err == nil {
		return updated, nil
	}

	if !errors.Is(err, domain.ErrVersionConflict) {
		return domain.Account{}, err
	}

	l.Error().
		Str("operation", op).
		Int64("account_id", accountID).
		Int("attempts", retries+1).
		Msg("retry budget exhausted")

	return domain.Account{}, fmt.Errorf("%s failed due to %w", op, domain.ErrConcurrencyConflict)
}

// Transfer moves amount from one account to another within one unit of work.
//
// Both rows are locked in ascending id order whatever the direction. Either both
// balances and both ledger entries are committed or nothing is.
func (s *Service) Transfer(ctx context.Context, fromAccountID, toAccountID int64, amount decimal.Decimal) (domain.TransferResult, error) {
	start := time.Now()

	result, err := s.transfer(ctx, fromAccountID, toAccountID, amount)

	s.metrics.ObserveOperation(OpTransfer, Outcome(err), time.Since(start))

	return result, err
}

func (s *Service) transfer(ctx context.Context, fromAccountID, toAccountID int64, amount decimal.Decimal) (domain.TransferResult, error) {
	if fromAccountID == toAccountID {
		return domain.TransferResult{}, domain.ErrInvalidOperation
	}

	var result domain.TransferResult

	err := s.tm.WithinTx(ctx, func(ctx context.Context) error {
		// To avoid deadlocks lock rows in consistent id order
		firstID, secondID := fromAccountID, toAccountID
		if firstID > secondID {
			firstID, secondID = secondID, firstID
		}

		first, err := s.accounts.GetForUpdate(ctx, firstID)
		if err != nil {
			return err
		}

		second, err := s.accounts.GetForUpdate(ctx, secondID)
		if err != nil {
			return err
		}

		from, to := first, second
		if fromAccountID != firstID {
			from, to = second, first
		}

		if from.Balance.LessThan(amount) {
			return domain.ErrInsufficientFunds
		}

		fromVersion, toVersion := from.Version, to.Version
		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)

		if result.FromAccount, err = s.accounts.Save(ctx, from, fromVersion); err != nil {
			return lockedSaveError(err)
		}

		if result.ToAccount, err = s.accounts.Save(ctx, to, toVersion); err != nil {
			return lockedSaveError(err)
		}

		if result.FromTransaction, err = s.transactions.Append(ctx, fromAccountID, amount, domain.TransferOut); err != nil {
			return err
		}

		result.ToTransaction, err = s.transactions.Append(ctx, toAccountID, amount, domain.TransferIn)

		return err
	})
	if err != nil {
		return domain.TransferResult{}, err
	}

	return result, nil
}

// lockedSaveError reports a version conflict on a locked row as a terminal
// concurrency conflict: transfers are not retried.
func lockedSaveError(err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("%s failed due to %w", OpTransfer, domain.ErrConcurrencyConflict)
	}

	return err
}

// ListTransactions returns a page of the account transactions, newest first.
//
// pageNo is zero-based.
func (s *Service) ListTransactions(ctx context.Context, accountID int64, pageNo, pageSize int) (domain.Page[domain.Transaction], error) {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		return domain.Page[domain.Transaction]{}, err
	}

	total, err := s.transactions.CountByAccount(ctx, accountID)
	if err != nil {
		return domain.Page[domain.Transaction]{}, err
	}

	limit, offset, ok := domain.PageWindow(pageNo, pageSize)
	if !ok {
		return domain.NewPage([]domain.Transaction{}, pageNo, pageSize, total), nil
	}

	items, err := s.transactions.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return domain.Page[domain.Transaction]{}, err
	}

	return domain.NewPage(items, pageNo, pageSize, total), nil
}

// Outcome classifies an engine error for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrAccountNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) IncRetry(string)                                {}
