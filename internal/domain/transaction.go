package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds indicates that the account balance is lower than the requested amount.
	ErrInsufficientFunds = errors.New("insufficient amount")
	// ErrInvalidOperation indicates a structurally invalid request such as a transfer to self.
	ErrInvalidOperation = errors.New("cannot transfer to the same account")
	// ErrConcurrencyConflict indicates that concurrent writers kept winning the optimistic race.
	ErrConcurrencyConflict = errors.New("high-concurrency conflict, retry later")
	// ErrVersionConflict indicates that the persisted account version no longer matches the
	// expected one. It is retryable and never leaves the money service.
	ErrVersionConflict = errors.New("account version conflict")
	// ErrLockTimeout indicates that an account row lock was not acquired in time.
	ErrLockTimeout = errors.New("account is busy, retry later")
	// ErrInvalidAmount indicates a non positive amount.
	ErrInvalidAmount = errors.New("amount must be a positive value")
)

// TransactionKind tells the direction of a ledger entry.
type TransactionKind string

// Supported transaction kinds.
const (
	Deposit     TransactionKind = "DEPOSIT"
	Withdraw    TransactionKind = "WITHDRAW"
	TransferIn  TransactionKind = "TRANSFER_IN"
	TransferOut TransactionKind = "TRANSFER_OUT"
)

// Transaction is an immutable ledger entry for one balance-affecting leg.
//
// Amount is always positive, Kind gives the direction.
type Transaction struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      TransactionKind `json:"transaction_type"`
	Timestamp time.Time       `json:"timestamp"`
}

// TransferResult is the result of the transfer transaction.
type TransferResult struct {
	FromAccount     Account     `json:"from_account"`
	ToAccount       Account     `json:"to_account"`
	FromTransaction Transaction `json:"from_transaction"`
	ToTransaction   Transaction `json:"to_transaction"`
}
