// Package helpers provides seed helpers shared by integration tests.
package helpers

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/transactionrepo"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
)

// SeedAccount creates an account with a random holder name and the given balance.
func SeedAccount(t *testing.T, db dbpkg.SQLInterface, owner string, balance decimal.Decimal) domain.Account {
	t.Helper()

	accountRepo := accountrepo.NewRepoPGS(db, 0)
	holderName := randompkg.HolderName()

	account, err := accountRepo.Create(context.Background(), owner, holderName, balance)
	if err != nil {
		t.Fatalf("accountRepo.Create(ctx, %v, %v, %v) returned error: %v", owner, holderName, balance, err)
	}

	return account
}

// SeedAccountWith1000Balance creates an account with 1000 on balance.
func SeedAccountWith1000Balance(t *testing.T, db dbpkg.SQLInterface, owner string) domain.Account {
	t.Helper()

	return SeedAccount(t, db, owner, decimal.NewFromInt(1000))
}

// SeedTransaction appends a ledger entry of the given kind.
func SeedTransaction(
	t *testing.T,
	db dbpkg.SQLInterface,
	accountID int64,
	amount decimal.Decimal,
	kind domain.TransactionKind,
) domain.Transaction {
	t.Helper()

	transactionRepo := transactionrepo.NewRepoPGS(db)

	transaction, err := transactionRepo.Append(context.Background(), accountID, amount, kind)
	if err != nil {
		t.Fatalf("transactionRepo.Append(ctx, %v, %v, %v) returned error: %v", accountID, amount, kind, err)
	}

	return transaction
}

// SeedDeposits appends count deposits with random amounts.
func SeedDeposits(t *testing.T, db dbpkg.SQLInterface, accountID int64, count int) []domain.Transaction {
	t.Helper()

	transactions := make([]domain.Transaction, count)

	for i := range transactions {
		amount := randompkg.MoneyAmountBetween(1, 1000)
		transactions[i] = SeedTransaction(t, db, accountID, amount, domain.Deposit)
	}

	return transactions
}
