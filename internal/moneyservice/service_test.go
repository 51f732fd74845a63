package moneyservice

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
)

type decimalMatcher struct {
	want decimal.Decimal
}

func (m decimalMatcher) Matches(x interface{}) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalMatcher) String() string {
	return "is decimal equal to " + m.want.String()
}

func decEq(v int64) gomock.Matcher {
	return decimalMatcher{want: decimal.NewFromInt(v)}
}

type mocks struct {
	tm           *MockTxManager
	accounts     *MockAccountRepo
	transactions *MockTransactionRepo
}

func newTestService(t *testing.T) (*Service, mocks) {
	t.Helper()

	ctrl := gomock.NewController(t)

	m := mocks{
		tm:           NewMockTxManager(ctrl),
		accounts:     NewMockAccountRepo(ctrl),
		transactions: NewMockTransactionRepo(ctrl),
	}

	// Units of work run inline.
	m.tm.EXPECT().
		WithinTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}).
		AnyTimes()

	return New(m.tm, m.accounts, m.transactions, Config{MaxAttempts: 3}), m
}

func testAccount(id, balance, version int64) domain.Account {
	return domain.Account{
		ID:         id,
		Owner:      "alice",
		HolderName: "Alice",
		Balance:    decimal.NewFromInt(balance),
		Version:    version,
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func withBalance(a domain.Account, balance int64) domain.Account {
	a.Balance = decimal.NewFromInt(balance)
	a.Version++
	return a
}

func TestDeposit(t *testing.T) {
	t.Parallel()

	account := testAccount(1, 1000, 1)

	testCases := []struct {
		name       string
		buildStubs func(m mocks)
		want       domain.Account
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "OK",
			buildStubs: func(m mocks) {
				gomock.InOrder(
					m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil),
					m.accounts.EXPECT().
						Save(gomock.Any(), gomock.Any(), account.Version).
						DoAndReturn(func(_ context.Context, a domain.Account, _ int64) (domain.Account, error) {
							require.True(t, a.Balance.Equal(decimal.NewFromInt(1100)))
							return withBalance(account, 1100), nil
						}),
					m.transactions.EXPECT().
						Append(gomock.Any(), account.ID, decEq(100), domain.Deposit).
						Return(domain.Transaction{ID: 1}, nil),
				)
			},
			want: withBalance(account, 1100),
		},
		{
			name: "AccountNotFound",
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(domain.Account{}, domain.ErrAccountNotFound)
				m.accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr:    domain.ErrAccountNotFound,
			wantErrMsg: domain.ErrAccountNotFound.Error(),
		},
		{
			name: "RetryThenSuccess",
			buildStubs: func(m mocks) {
				concurrent := withBalance(account, 1050)

				gomock.InOrder(
					m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil),
					m.accounts.EXPECT().
						Save(gomock.Any(), gomock.Any(), account.Version).
						Return(domain.Account{}, domain.ErrVersionConflict),
					m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(concurrent, nil),
					m.accounts.EXPECT().
						Save(gomock.Any(), gomock.Any(), concurrent.Version).
						DoAndReturn(func(_ context.Context, a domain.Account, _ int64) (domain.Account, error) {
							require.True(t, a.Balance.Equal(decimal.NewFromInt(1150)))
							return withBalance(concurrent, 1150), nil
						}),
					m.transactions.EXPECT().
						Append(gomock.Any(), account.ID, decEq(100), domain.Deposit).
						Times(1).
						Return(domain.Transaction{ID: 1}, nil),
				)
			},
			want: withBalance(withBalance(account, 1050), 1150),
		},
		{
			name: "ConflictPersists",
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Times(3).Return(account, nil)
				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), account.Version).
					Times(3).
					Return(domain.Account{}, domain.ErrVersionConflict)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr:    domain.ErrConcurrencyConflict,
			wantErrMsg: "deposit failed due to high-concurrency conflict, retry later",
		},
		{
			name: "AppendFails",
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil)
				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), account.Version).
					Return(withBalance(account, 1100), nil)
				m.transactions.EXPECT().
					Append(gomock.Any(), account.ID, decEq(100), domain.Deposit).
					Return(domain.Transaction{}, errorspkg.ErrInternal)
			},
			wantErr:    errorspkg.ErrInternal,
			wantErrMsg: errorspkg.ErrInternal.Error(),
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, m := newTestService(t)
			tc.buildStubs(m)

			got, err := s.Deposit(context.Background(), account.ID, decimal.NewFromInt(100))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.EqualError(t, err, tc.wantErrMsg)
				require.Empty(t, got)

				return
			}

			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Deposit() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWithdraw(t *testing.T) {
	t.Parallel()

	account := testAccount(1, 1000, 1)

	testCases := []struct {
		name       string
		amount     int64
		buildStubs func(m mocks)
		want       domain.Account
		wantErr    error
		wantErrMsg string
	}{
		{
			name:   "OK",
			amount: 100,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil)
				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), account.Version).
					DoAndReturn(func(_ context.Context, a domain.Account, _ int64) (domain.Account, error) {
						require.True(t, a.Balance.Equal(decimal.NewFromInt(900)))
						return withBalance(account, 900), nil
					})
				m.transactions.EXPECT().
					Append(gomock.Any(), account.ID, decEq(100), domain.Withdraw).
					Return(domain.Transaction{ID: 1}, nil)
			},
			want: withBalance(account, 900),
		},
		{
			name:   "WholeBalance",
			amount: 1000,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil)
				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), account.Version).
					Return(withBalance(account, 0), nil)
				m.transactions.EXPECT().
					Append(gomock.Any(), account.ID, decEq(1000), domain.Withdraw).
					Return(domain.Transaction{ID: 1}, nil)
			},
			want: withBalance(account, 0),
		},
		{
			name:   "InsufficientFunds",
			amount: 1001,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil)
				m.accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr:    domain.ErrInsufficientFunds,
			wantErrMsg: domain.ErrInsufficientFunds.Error(),
		},
		{
			name:   "ConflictPersists",
			amount: 100,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Times(3).Return(account, nil)
				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), account.Version).
					Times(3).
					Return(domain.Account{}, domain.ErrVersionConflict)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr:    domain.ErrConcurrencyConflict,
			wantErrMsg: "withdraw failed due to high-concurrency conflict, retry later",
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, m := newTestService(t)
			tc.buildStubs(m)

			got, err := s.Withdraw(context.Background(), account.ID, decimal.NewFromInt(tc.amount))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.EqualError(t, err, tc.wantErrMsg)
				require.Empty(t, got)

				return
			}

			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Withdraw() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransfer(t *testing.T) {
	t.Parallel()

	low := testAccount(1, 500, 3)
	high := testAccount(2, 1000, 1)

	testCases := []struct {
		name       string
		fromID     int64
		toID       int64
		amount     int64
		buildStubs func(m mocks)
		check      func(t *testing.T, res domain.TransferResult)
		wantErr    error
	}{
		{
			name:   "SameAccount",
			fromID: low.ID,
			toID:   low.ID,
			amount: 1,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), gomock.Any()).Times(0)
				m.accounts.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)
				m.accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrInvalidOperation,
		},
		{
			name:   "OKHighToLowLocksLowFirst",
			fromID: high.ID,
			toID:   low.ID,
			amount: 200,
			buildStubs: func(m mocks) {
				gomock.InOrder(
					m.accounts.EXPECT().GetForUpdate(gomock.Any(), low.ID).Return(low, nil),
					m.accounts.EXPECT().GetForUpdate(gomock.Any(), high.ID).Return(high, nil),
				)

				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), high.Version).
					DoAndReturn(func(_ context.Context, a domain.Account, _ int64) (domain.Account, error) {
						require.Equal(t, high.ID, a.ID)
						require.True(t, a.Balance.Equal(decimal.NewFromInt(800)))
						return withBalance(high, 800), nil
					})
				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), low.Version).
					DoAndReturn(func(_ context.Context, a domain.Account, _ int64) (domain.Account, error) {
						require.Equal(t, low.ID, a.ID)
						require.True(t, a.Balance.Equal(decimal.NewFromInt(700)))
						return withBalance(low, 700), nil
					})
				m.transactions.EXPECT().
					Append(gomock.Any(), high.ID, decEq(200), domain.TransferOut).
					Return(domain.Transaction{ID: 1, AccountID: high.ID, Kind: domain.TransferOut}, nil)
				m.transactions.EXPECT().
					Append(gomock.Any(), low.ID, decEq(200), domain.TransferIn).
					Return(domain.Transaction{ID: 2, AccountID: low.ID, Kind: domain.TransferIn}, nil)
			},
			check: func(t *testing.T, res domain.TransferResult) {
				require.True(t, res.FromAccount.Balance.Equal(decimal.NewFromInt(800)))
				require.True(t, res.ToAccount.Balance.Equal(decimal.NewFromInt(700)))
				require.Equal(t, domain.TransferOut, res.FromTransaction.Kind)
				require.Equal(t, domain.TransferIn, res.ToTransaction.Kind)
			},
		},
		{
			name:   "OKLowToHighLocksLowFirst",
			fromID: low.ID,
			toID:   high.ID,
			amount: 500,
			buildStubs: func(m mocks) {
				gomock.InOrder(
					m.accounts.EXPECT().GetForUpdate(gomock.Any(), low.ID).Return(low, nil),
					m.accounts.EXPECT().GetForUpdate(gomock.Any(), high.ID).Return(high, nil),
				)

				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(2).
					DoAndReturn(func(_ context.Context, a domain.Account, _ int64) (domain.Account, error) {
						a.Version++
						return a, nil
					})
				m.transactions.EXPECT().
					Append(gomock.Any(), low.ID, decEq(500), domain.TransferOut).
					Return(domain.Transaction{ID: 1}, nil)
				m.transactions.EXPECT().
					Append(gomock.Any(), high.ID, decEq(500), domain.TransferIn).
					Return(domain.Transaction{ID: 2}, nil)
			},
			check: func(t *testing.T, res domain.TransferResult) {
				require.True(t, res.FromAccount.Balance.IsZero())
				require.True(t, res.ToAccount.Balance.Equal(decimal.NewFromInt(1500)))
			},
		},
		{
			name:   "InsufficientFunds",
			fromID: low.ID,
			toID:   high.ID,
			amount: 501,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), low.ID).Return(low, nil)
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), high.ID).Return(high, nil)
				m.accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name:   "ToAccountNotFound",
			fromID: low.ID,
			toID:   high.ID,
			amount: 1,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), low.ID).Return(low, nil)
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), high.ID).Return(domain.Account{}, domain.ErrAccountNotFound)
				m.accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:   "LockTimeout",
			fromID: high.ID,
			toID:   low.ID,
			amount: 1,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), low.ID).Return(domain.Account{}, domain.ErrLockTimeout)
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), high.ID).Times(0)
				m.accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrLockTimeout,
		},
		{
			name:   "VersionConflictUnderLock",
			fromID: low.ID,
			toID:   high.ID,
			amount: 1,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), low.ID).Return(low, nil)
				m.accounts.EXPECT().GetForUpdate(gomock.Any(), high.ID).Return(high, nil)
				m.accounts.EXPECT().
					Save(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.Account{}, domain.ErrVersionConflict)
				m.transactions.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrConcurrencyConflict,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, m := newTestService(t)
			tc.buildStubs(m)

			res, err := s.Transfer(context.Background(), tc.fromID, tc.toID, decimal.NewFromInt(tc.amount))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Empty(t, res)

				return
			}

			require.NoError(t, err)
			tc.check(t, res)
		})
	}
}

func TestListTransactions(t *testing.T) {
	t.Parallel()

	account := testAccount(1, 0, 1)
	items := []domain.Transaction{
		{ID: 5, AccountID: account.ID, Amount: decimal.NewFromInt(1), Kind: domain.Deposit},
		{ID: 4, AccountID: account.ID, Amount: decimal.NewFromInt(2), Kind: domain.Withdraw},
	}

	testCases := []struct {
		name       string
		pageNo     int
		pageSize   int
		buildStubs func(m mocks)
		want       domain.Page[domain.Transaction]
		wantErr    error
	}{
		{
			name:     "OK",
			pageNo:   1,
			pageSize: 3,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil)
				m.transactions.EXPECT().CountByAccount(gomock.Any(), account.ID).Return(int64(5), nil)
				m.transactions.EXPECT().
					ListByAccount(gomock.Any(), account.ID, int32(3), int32(3)).
					Return(items, nil)
			},
			want: domain.Page[domain.Transaction]{
				Content:       items,
				PageNo:        1,
				PageSize:      3,
				TotalElements: 5,
				TotalPages:    2,
				Last:          true,
			},
		},
		{
			name:     "AccountNotFound",
			pageNo:   1,
			pageSize: 3,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(domain.Account{}, domain.ErrAccountNotFound)
				m.transactions.EXPECT().CountByAccount(gomock.Any(), gomock.Any()).Times(0)
				m.transactions.EXPECT().ListByAccount(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name:     "CountFails",
			pageNo:   1,
			pageSize: 3,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil)
				m.transactions.EXPECT().CountByAccount(gomock.Any(), account.ID).Return(int64(0), errorspkg.ErrInternal)
				m.transactions.EXPECT().ListByAccount(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			wantErr: errorspkg.ErrInternal,
		},
		{
			name:     "PageBeyondOffsetRange",
			pageNo:   21474837,
			pageSize: 100,
			buildStubs: func(m mocks) {
				m.accounts.EXPECT().Get(gomock.Any(), account.ID).Return(account, nil)
				m.transactions.EXPECT().CountByAccount(gomock.Any(), account.ID).Return(int64(3), nil)
				m.transactions.EXPECT().ListByAccount(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			want: domain.Page[domain.Transaction]{
				Content:       []domain.Transaction{},
				PageNo:        21474837,
				PageSize:      100,
				TotalElements: 3,
				TotalPages:    1,
				Last:          true,
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, m := newTestService(t)
			tc.buildStubs(m)

			got, err := s.ListTransactions(context.Background(), account.ID, tc.pageNo, tc.pageSize)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)

			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ListTransactions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	tm := NewMockTxManager(ctrl)
	accounts := NewMockAccountRepo(ctrl)
	transactions := NewMockTransactionRepo(ctrl)
	metrics := NewMockMetrics(ctrl)

	tm.EXPECT().
		WithinTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		}).
		Times(2)

	account := testAccount(1, 10, 1)

	accounts.EXPECT().Get(gomock.Any(), account.ID).Times(2).Return(account, nil)
	gomock.InOrder(
		accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Account{}, domain.ErrVersionConflict),
		accounts.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any()).Return(withBalance(account, 11), nil),
	)
	transactions.EXPECT().Append(gomock.Any(), account.ID, decEq(1), domain.Deposit).Return(domain.Transaction{}, nil)

	metrics.EXPECT().IncRetry(OpDeposit).Times(1)
	metrics.EXPECT().ObserveOperation(OpDeposit, "success", gomock.Any()).Times(1)

	s := New(tm, accounts, transactions, Config{MaxAttempts: 2, Metrics: metrics})

	_, err := s.Deposit(context.Background(), account.ID, decimal.NewFromInt(1))
	require.NoError(t, err)
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		err  error
		want string
	}{
		{err: nil, want: "success"},
		{err: domain.ErrAccountNotFound, want: "not_found"},
		{err: domain.ErrInsufficientFunds, want: "insufficient_funds"},
		{err: domain.ErrInvalidOperation, want: "invalid_operation"},
		{err: domain.ErrConcurrencyConflict, want: "conflict"},
		{err: domain.ErrLockTimeout, want: "lock_timeout"},
		{err: errorspkg.ErrInternal, want: "error"},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.want, Outcome(tc.err))
	}
}
