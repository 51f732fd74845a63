// Package memstore is an in-memory account and ledger store.
//
// It provides the same units of work, optimistic version checks and bounded row
// lock waits as the Postgres repositories, and backs the memory database driver
// and the concurrency tests of the money service.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

// DefaultLockTimeout bounds the wait for an account row lock.
const DefaultLockTimeout = 3 * time.Second

const maxHolderNameLength = 100

// Store keeps committed accounts and transactions in memory.
//
// A unit of work stages its writes and publishes them atomically on success.
// Writers hold the row lock of every account they touch until the unit ends,
// like row-level locks of a database transaction.
type Store struct {
	mu           sync.Mutex
	accounts     map[int64]domain.Account
	transactions []domain.Transaction
	locks        map[int64]chan struct{}

	nextAccountID     int64
	nextTransactionID int64

	lockTimeout time.Duration
	now         func() time.Time
}

// New returns an empty Store. A zero lockTimeout means DefaultLockTimeout.
func New(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &Store{
		accounts:    make(map[int64]domain.Account),
		locks:       make(map[int64]chan struct{}),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

type unitKey struct{}

type unit struct {
	accounts     map[int64]domain.Account
	deleted      map[int64]bool
	transactions []domain.Transaction
	held         map[int64]chan struct{}
}

func unitFromContext(ctx context.Context) (*unit, bool) {
	u, ok := ctx.Value(unitKey{}).(*unit)
	return u, ok
}

// WithinTx executes fn as one unit of work.
//
// Staged writes are published when fn returns nil and discarded otherwise. Row
// locks are released in both cases. A ctx that already carries a unit joins it.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := unitFromContext(ctx); ok {
		return fn(ctx)
	}

	u := &unit{
		accounts: make(map[int64]domain.Account),
		deleted:  make(map[int64]bool),
		held:     make(map[int64]chan struct{}),
	}
	defer s.release(u)

	if err := fn(context.WithValue(ctx, unitKey{}, u)); err != nil {
		return err
	}

	s.commit(u)

	return nil
}

// run executes fn in the unit carried by ctx or in a new single-statement unit.
func (s *Store) run(ctx context.Context, fn func(u *unit) error) error {
	return s.WithinTx(ctx, func(ctx context.Context) error {
		u, _ := unitFromContext(ctx)
		return fn(u)
	})
}

func (s *Store) commit(u *unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range u.accounts {
		if u.deleted[id] {
			continue
		}

		s.accounts[id] = a
	}

	for id := range u.deleted {
		delete(s.accounts, id)
	}

	s.transactions = append(s.transactions, u.transactions...)
}

func (s *Store) release(u *unit) {
	for id, l := range u.held {
		<-l
		delete(u.held, id)
	}
}

func (s *Store) rowLock(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}

	return l
}

// lock acquires the row lock of id for u, waiting at most the lock timeout.
func (s *Store) lock(ctx context.Context, u *unit, id int64) error {
	if _, ok := u.held[id]; ok {
		return nil
	}

	l := s.rowLock(id)

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case l <- struct{}{}:
		u.held[id] = l
		return nil
	case <-timer.C:
		return domain.ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// current returns the account as seen by u: staged first, then committed.
func (s *Store) current(u *unit, id int64) (domain.Account, bool) {
	if u != nil {
		if u.deleted[id] {
			return domain.Account{}, false
		}

		if a, ok := u.accounts[id]; ok {
			return a, true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]

	return a, ok
}

// Create opens an account with the given initial balance.
func (s *Store) Create(ctx context.Context, owner, holderName string, balance decimal.Decimal) (domain.Account, error) {
	if balance.IsNegative() {
		return domain.Account{}, domain.ErrNegativeBalance
	}

	if n := len([]rune(holderName)); n == 0 || n > maxHolderNameLength {
		return domain.Account{}, domain.ErrInvalidHolderName
	}

	var a domain.Account

	err := s.run(ctx, func(u *unit) error {
		s.mu.Lock()
		s.nextAccountID++
		a = domain.Account{
			ID:         s.nextAccountID,
			Owner:      owner,
			HolderName: holderName,
			Balance:    balance,
			Version:    1,
			CreatedAt:  s.now(),
		}
		s.mu.Unlock()

		u.accounts[a.ID] = a

		return nil
	})

	return a, err
}

// Get returns the account with the given id without locking it.
func (s *Store) Get(ctx context.Context, id int64) (domain.Account, error) {
	u, _ := unitFromContext(ctx)

	a, ok := s.current(u, id)
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// GetForUpdate returns the account with the given id holding its row lock
// until the surrounding unit of work ends.
func (s *Store) GetForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	u, ok := unitFromContext(ctx)
	if !ok {
		return domain.Account{}, dbpkg.ErrNoTx
	}

	if err := s.lock(ctx, u, id); err != nil {
		return domain.Account{}, err
	}

	a, ok := s.current(u, id)
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// Save stages the account balance if the stored version still equals expectedVersion.
//
// The version is checked once the row lock is held, so a writer that lost the
// race observes the version published by the winner.
func (s *Store) Save(ctx context.Context, account domain.Account, expectedVersion int64) (domain.Account, error) {
	var saved domain.Account

	err := s.run(ctx, func(u *unit) error {
		if err := s.lock(ctx, u, account.ID); err != nil {
			return err
		}

		stored, ok := s.current(u, account.ID)
		if !ok || stored.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		if account.Balance.IsNegative() {
			return domain.ErrInsufficientFunds
		}

		stored.Balance = account.Balance
		stored.Version++
		u.accounts[stored.ID] = stored
		saved = stored

		return nil
	})

	return saved, err
}

// Delete removes the account with the given id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.run(ctx, func(u *unit) error {
		if err := s.lock(ctx, u, id); err != nil {
			return err
		}

		if _, ok := s.current(u, id); !ok {
			return domain.ErrAccountNotFound
		}

		u.deleted[id] = true

		return nil
	})
}

// List returns the specified number of committed accounts in the requested order.
func (s *Store) List(ctx context.Context, limit, offset int32, sortBy, sortDir string) ([]domain.Account, error) {
	s.mu.Lock()
	items := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		items = append(items, a)
	}
	s.mu.Unlock()

	desc := strings.EqualFold(sortDir, domain.SortDesc)
	less := accountLess(sortBy)

	sort.Slice(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}

		return less(items[i], items[j])
	})

	return window(items, limit, offset), nil
}

func accountLess(sortBy string) func(a, b domain.Account) bool {
	switch sortBy {
	case domain.SortByHolderName, "holderName":
		return func(a, b domain.Account) bool {
			if a.HolderName != b.HolderName {
				return a.HolderName < b.HolderName
			}

			return a.ID < b.ID
		}
	case domain.SortByBalance:
		return func(a, b domain.Account) bool {
			if c := a.Balance.Cmp(b.Balance); c != 0 {
				return c < 0
			}

			return a.ID < b.ID
		}
	default:
		return func(a, b domain.Account) bool { return a.ID < b.ID }
	}
}

// Count returns the number of committed accounts.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.accounts)), nil
}

// Append stages one ledger entry and returns it.
func (s *Store) Append(ctx context.Context, accountID int64, amount decimal.Decimal, kind domain.TransactionKind) (domain.Transaction, error) {
	if !amount.IsPositive() {
		return domain.Transaction{}, domain.ErrInvalidAmount
	}

	var t domain.Transaction

	err := s.run(ctx, func(u *unit) error {
		s.mu.Lock()
		s.nextTransactionID++
		t = domain.Transaction{
			ID:        s.nextTransactionID,
			AccountID: accountID,
			Amount:    amount,
			Kind:      kind,
			Timestamp: s.now(),
		}
		s.mu.Unlock()

		u.transactions = append(u.transactions, t)

		return nil
	})

	return t, err
}

// ListByAccount returns the committed account transactions, newest first.
func (s *Store) ListByAccount(ctx context.Context, accountID int64, limit, offset int32) ([]domain.Transaction, error) {
	s.mu.Lock()
	items := []domain.Transaction{}
	for _, t := range s.transactions {
		if t.AccountID == accountID {
			items = append(items, t)
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}

		return items[i].ID > items[j].ID
	})

	return window(items, limit, offset), nil
}

// CountByAccount returns the number of committed transactions of the account.
func (s *Store) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64

	for _, t := range s.transactions {
		if t.AccountID == accountID {
			n++
		}
	}

	return n, nil
}

func window[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}

	if int(offset) >= len(items) {
		return []T{}
	}

	items = items[offset:]

	if limit >= 0 && int(limit) < len(items) {
		items = items[:limit]
	}

	return items
}
