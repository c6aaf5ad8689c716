package ledgerrepo

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
)

type ledgerStore interface {
	Provision(ctx context.Context, accounts []domain.Account) error
	CurrentBalance(ctx context.Context, accountID int32) (domain.Balance, error)
	Commit(ctx context.Context, arg domain.CommitParams) (domain.TransactionRecord, error)
	RecentTransactions(ctx context.Context, accountID int32, limit int) ([]domain.TransactionRecord, error)
	Snapshot(ctx context.Context, accountID int32, limit int) (domain.Balance, []domain.TransactionRecord, error)
	Ping(ctx context.Context) error
}

var testAccounts = []domain.Account{
	{ID: 1, CreditLimit: 100000},
	{ID: 2, CreditLimit: 80000},
}

func randomRecord(kind domain.Kind, amount int64) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:          uuid.New(),
		Kind:        kind,
		Amount:      amount,
		Description: randompkg.Description(),
	}
}

// runStoreContract checks the behaviour every ledger store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) ledgerStore) {
	ctx := context.Background()

	t.Run("ProvisionIsIdempotent", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Provision(ctx, testAccounts))
		require.NoError(t, s.Provision(ctx, testAccounts))

		b, err := s.CurrentBalance(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, domain.Balance{AccountID: 1}, b)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Provision(ctx, testAccounts))

		_, err := s.CurrentBalance(ctx, 999)
		require.ErrorIs(t, err, domain.ErrAccountNotFound)

		_, _, err = s.Snapshot(ctx, 999, 10)
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("CommitAppliesBalanceAndRecord", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Provision(ctx, testAccounts))

		rec := randomRecord(domain.Credit, 100)

		got, err := s.Commit(ctx, domain.CommitParams{AccountID: 1, ExpectedVersion: 0, NewTotal: 100, Record: rec})
		require.NoError(t, err)
		require.Equal(t, int32(1), got.AccountID)
		require.Equal(t, int64(100), got.BalanceAfter)
		require.False(t, got.OccurredAt.IsZero())

		b, err := s.CurrentBalance(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, domain.Balance{AccountID: 1, Total: 100, Version: 1}, b)

		items, err := s.RecentTransactions(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, items, 1)

		want := rec
		want.AccountID = 1
		want.BalanceAfter = 100

		if diff := cmp.Diff(want, items[0], cmpopts.IgnoreFields(domain.TransactionRecord{}, "OccurredAt")); diff != "" {
			t.Errorf("items[0] mismatch (-want +got):\n%s", diff)
		}

		other, err := s.CurrentBalance(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, domain.Balance{AccountID: 2}, other)
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Provision(ctx, testAccounts))

		_, err := s.Commit(ctx, domain.CommitParams{AccountID: 1, ExpectedVersion: 0, NewTotal: 10, Record: randomRecord(domain.Credit, 10)})
		require.NoError(t, err)

		_, err = s.Commit(ctx, domain.CommitParams{AccountID: 1, ExpectedVersion: 0, NewTotal: 20, Record: randomRecord(domain.Credit, 20)})
		require.ErrorIs(t, err, domain.ErrConflict)

		b, items, err := s.Snapshot(ctx, 1, 10)
		require.NoError(t, err)
		require.Equal(t, int64(10), b.Total)
		require.Equal(t, int64(1), b.Version)
		require.Len(t, items, 1)
	})

	t.Run("RecentTransactionsNewestFirstAndBounded", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Provision(ctx, testAccounts))

		var total int64

		for i := int64(0); i < 15; i++ {
			total += i + 1

			_, err := s.Commit(ctx, domain.CommitParams{
				AccountID:       1,
				ExpectedVersion: i,
				NewTotal:        total,
				Record:          randomRecord(domain.Credit, i+1),
			})
			require.NoError(t, err)
		}

		b, items, err := s.Snapshot(ctx, 1, 10)
		require.NoError(t, err)
		require.Equal(t, total, b.Total)
		require.Len(t, items, 10)
		require.Equal(t, b.Total, items[0].BalanceAfter)

		for i := 0; i < len(items)-1; i++ {
			require.Equal(t, items[i].Amount, items[i+1].Amount+1)
			require.False(t, items[i].OccurredAt.Before(items[i+1].OccurredAt))
			require.Equal(t, items[i].BalanceAfter, items[i+1].BalanceAfter+items[i].Amount)
		}
	})

	t.Run("ConcurrentCommitsSameVersionOnlyOneWins", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Provision(ctx, testAccounts))

		const n = 20

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)

		for i := 0; i < n; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, err := s.Commit(ctx, domain.CommitParams{AccountID: 1, ExpectedVersion: 0, NewTotal: 5, Record: randomRecord(domain.Credit, 5)})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()

					return
				}

				assert.ErrorIs(t, err, domain.ErrConflict)
			}()
		}

		wg.Wait()

		require.Equal(t, 1, wins)

		b, items, err := s.Snapshot(ctx, 1, 10)
		require.NoError(t, err)
		require.Equal(t, domain.Balance{AccountID: 1, Total: 5, Version: 1}, b)
		require.Len(t, items, 1)
	})

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, newStore(t).Ping(ctx))
	})
}
