// Package domain provides definitions of all entities.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountOwnerMismatch indicates that the account does not belong to the acting user.
	ErrAccountOwnerMismatch = errors.New("account doesn't belong to the user")
	// ErrNegativeBalance indicates that an account was opened with a negative balance.
	ErrNegativeBalance = errors.New("initial balance cannot be negative")
	// ErrInvalidHolderName indicates that the account holder name is empty or too long.
	ErrInvalidHolderName = errors.New("account holder name must be between 1 and 100 characters")
)

// Account holds a balance of a single holder.
//
// Version grows by one on every persisted balance change and is the token of
// optimistic concurrency checks.
type Account struct {
	ID         int64           `json:"id"`
	Owner      string          `json:"owner"`
	HolderName string          `json:"account_holder_name"`
	Balance    decimal.Decimal `json:"balance"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Account sort fields accepted by listing.
const (
	SortByID         = "id"
	SortByHolderName = "account_holder_name"
	SortByBalance    = "balance"

	SortAsc  = "asc"
	SortDesc = "desc"
)
