package statementservice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/accountregistry"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerrepo"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
)

var testConfig = configpkg.Config{StatementLimit: 10, StoreTimeout: time.Second}

func randomRecord(balanceAfter int64) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:           uuid.New(),
		AccountID:    1,
		Kind:         domain.Credit,
		Amount:       randompkg.Int64Between(1, 100),
		Description:  randompkg.Description(),
		BalanceAfter: balanceAfter,
		OccurredAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestGet(t *testing.T) {
	account := domain.Account{ID: 1, CreditLimit: 100000}
	now := time.Date(2024, 1, 17, 2, 34, 41, 0, time.UTC)
	records := []domain.TransactionRecord{randomRecord(30), randomRecord(20)}

	testCases := []struct {
		name          string
		buildStubs    func(store *MockStore, registry *MockRegistry)
		checkResponse func(t *testing.T, res domain.Statement, err error)
	}{
		{
			name: "OK",
			buildStubs: func(store *MockStore, registry *MockRegistry) {
				registry.EXPECT().Lookup(gomock.Eq(account.ID)).Times(1).Return(account, nil)
				store.EXPECT().Snapshot(gomock.Any(), gomock.Eq(account.ID), gomock.Eq(10)).
					Times(1).
					Return(domain.Balance{AccountID: 1, Total: 30, Version: 2}, records, nil)
			},
			checkResponse: func(t *testing.T, res domain.Statement, err error) {
				require.NoError(t, err)

				want := domain.Statement{
					Balance:      domain.StatementBalance{Total: 30, AsOf: now, CreditLimit: 100000},
					Transactions: records,
				}

				if diff := cmp.Diff(want, res); diff != "" {
					t.Errorf("Get() mismatch (-want +got):\n%s", diff)
				}
			},
		},
		{
			name: "Empty",
			buildStubs: func(store *MockStore, registry *MockRegistry) {
				registry.EXPECT().Lookup(gomock.Eq(account.ID)).Times(1).Return(account, nil)
				store.EXPECT().Snapshot(gomock.Any(), gomock.Eq(account.ID), gomock.Eq(10)).
					Times(1).
					Return(domain.Balance{AccountID: 1}, []domain.TransactionRecord{}, nil)
			},
			checkResponse: func(t *testing.T, res domain.Statement, err error) {
				require.NoError(t, err)
				require.Zero(t, res.Balance.Total)
				require.Empty(t, res.Transactions)
				require.NotNil(t, res.Transactions)
			},
		},
		{
			name: "AccountNotFound",
			buildStubs: func(store *MockStore, registry *MockRegistry) {
				registry.EXPECT().Lookup(gomock.Eq(account.ID)).Times(1).Return(domain.Account{}, domain.ErrAccountNotFound)
				store.EXPECT().Snapshot(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(t *testing.T, res domain.Statement, err error) {
				require.ErrorIs(t, err, domain.ErrAccountNotFound)
				require.Empty(t, res)
			},
		},
		{
			name: "StoreUnavailable",
			buildStubs: func(store *MockStore, registry *MockRegistry) {
				registry.EXPECT().Lookup(gomock.Eq(account.ID)).Times(1).Return(account, nil)
				store.EXPECT().Snapshot(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.Balance{}, nil, domain.ErrUnavailable)
			},
			checkResponse: func(t *testing.T, res domain.Statement, err error) {
				require.ErrorIs(t, err, domain.ErrUnavailable)
				require.Empty(t, res)
			},
		},
		{
			name: "TornSnapshot",
			buildStubs: func(store *MockStore, registry *MockRegistry) {
				registry.EXPECT().Lookup(gomock.Eq(account.ID)).Times(1).Return(account, nil)
				store.EXPECT().Snapshot(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.Balance{AccountID: 1, Total: 31, Version: 3}, records, nil)
			},
			checkResponse: func(t *testing.T, res domain.Statement, err error) {
				require.ErrorIs(t, err, domain.ErrInternal)
				require.Empty(t, res)
			},
		},
		{
			name: "BalanceWithoutRecords",
			buildStubs: func(store *MockStore, registry *MockRegistry) {
				registry.EXPECT().Lookup(gomock.Eq(account.ID)).Times(1).Return(account, nil)
				store.EXPECT().Snapshot(gomock.Any(), gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.Balance{AccountID: 1, Total: 5, Version: 1}, []domain.TransactionRecord{}, nil)
			},
			checkResponse: func(t *testing.T, res domain.Statement, err error) {
				require.ErrorIs(t, err, domain.ErrInternal)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := NewMockStore(ctrl)
			registry := NewMockRegistry(ctrl)
			tc.buildStubs(store, registry)

			service := New(store, registry, testConfig)
			service.now = func() time.Time { return now }

			res, err := service.Get(context.Background(), account.ID)
			tc.checkResponse(t, res, err)
		})
	}
}

func TestGetMonotonicUnderWrites(t *testing.T) {
	ctx := context.Background()

	registry, err := accountregistry.New(accountregistry.DefaultAccounts)
	require.NoError(t, err)

	store := ledgerrepo.NewRepoMem()
	require.NoError(t, store.Provision(ctx, registry.All()))

	service := New(store, registry, testConfig)

	const writes = 200

	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		defer close(done)

		for i := int64(0); i < writes; i++ {
			_, err := store.Commit(ctx, domain.CommitParams{
				AccountID:       1,
				ExpectedVersion: i,
				NewTotal:        i + 1,
				Record:          domain.TransactionRecord{ID: uuid.New(), Kind: domain.Credit, Amount: 1, Description: "tick"},
			})
			if err != nil {
				t.Errorf("Commit returned error: %v", err)
				return
			}
		}
	}()

	var last int64

	for {
		st, err := service.Get(ctx, 1)
		require.NoError(t, err)
		require.GreaterOrEqual(t, st.Balance.Total, last)
		require.LessOrEqual(t, len(st.Transactions), 10)

		last = st.Balance.Total

		select {
		case <-done:
			wg.Wait()

			st, err := service.Get(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, int64(writes), st.Balance.Total)

			return
		default:
		}
	}
}
