// Package accountservice manages business logic layer of accounts.
package accountservice

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// Repo provides data access layer interface needed by account service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package accountservice
type Repo interface {
	Create(ctx context.Context, owner, holderName string, balance decimal.Decimal) (domain.Account, error)
	Get(ctx context.Context, id int64) (domain.Account, error)
	List(ctx context.Context, limit, offset int32, sortBy, sortDir string) ([]domain.Account, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// Service facilitates account service layer logic.
type Service struct {
	repo Repo
}

// New returns account service struct to manage account business logic.
func New(ar Repo) *Service {
	return &Service{repo: ar}
}

// Create opens an account for the given owner with the initial balance.
func (s *Service) Create(ctx context.Context, owner, holderName string, balance decimal.Decimal) (domain.Account, error) {
	if balance.IsNegative() {
		return domain.Account{}, domain.ErrNegativeBalance
	}

	return s.repo.Create(ctx, owner, holderName, balance)
}

// Get returns account for the given account ID.
func (s *Service) Get(ctx context.Context, id int64) (domain.Account, error) {
	return s.repo.Get(ctx, id)
}

// List returns the zero-based page of all accounts in the requested order.
func (s *Service) List(ctx context.Context, pageNo, pageSize int, sortBy, sortDir string) (domain.Page[domain.Account], error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return domain.Page[domain.Account]{}, err
	}

	limit, offset, ok := domain.PageWindow(pageNo, pageSize)
	if !ok {
		return domain.NewPage([]domain.Account{}, pageNo, pageSize, total), nil
	}

	accounts, err := s.repo.List(ctx, limit, offset, sortBy, sortDir)
	if err != nil {
		return domain.Page[domain.Account]{}, err
	}

	return domain.NewPage(accounts, pageNo, pageSize, total), nil
}

// Delete removes the account with the given ID.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
