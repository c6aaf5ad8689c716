package ledgerrepo

import (
	"context"
	"sync"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
)

type memLedger struct {
	mu      sync.RWMutex
	balance domain.Balance
	records []domain.TransactionRecord // commit order, oldest first
}

// RepoMem is a process local ledger store.
//
// Every account has its own lock, so commits on different accounts do not
// contend. It offers the same compare-and-swap contract as RepoPGS.
type RepoMem struct {
	mu      sync.RWMutex
	ledgers map[int32]*memLedger
	now     func() time.Time
}

// NewRepoMem returns an empty in-memory ledger store.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		ledgers: make(map[int32]*memLedger),
		now:     time.Now,
	}
}

func (r *RepoMem) ledger(accountID int32) (*memLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.ledgers[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	return l, nil
}

// Provision creates a zero balance for every account that has none yet.
func (r *RepoMem) Provision(ctx context.Context, accounts []domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range accounts {
		if _, ok := r.ledgers[a.ID]; !ok {
			r.ledgers[a.ID] = &memLedger{balance: domain.Balance{AccountID: a.ID}}
		}
	}

	return nil
}

// CurrentBalance returns the latest committed balance of the account.
func (r *RepoMem) CurrentBalance(ctx context.Context, accountID int32) (domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return domain.Balance{}, domain.ErrUnavailable
	}

	l, err := r.ledger(accountID)
	if err != nil {
		return domain.Balance{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balance, nil
}

// Commit replaces the balance and appends the record if the version still matches.
func (r *RepoMem) Commit(ctx context.Context, arg domain.CommitParams) (domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransactionRecord{}, domain.ErrUnavailable
	}

	l, err := r.ledger(arg.AccountID)
	if err != nil {
		return domain.TransactionRecord{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balance.Version != arg.ExpectedVersion {
		return domain.TransactionRecord{}, domain.ErrConflict
	}

	rec := arg.Record
	rec.AccountID = arg.AccountID
	rec.BalanceAfter = arg.NewTotal
	rec.OccurredAt = r.now().UTC()

	// Keep occurred_at non decreasing in commit order even if the clock steps back.
	if n := len(l.records); n > 0 && rec.OccurredAt.Before(l.records[n-1].OccurredAt) {
		rec.OccurredAt = l.records[n-1].OccurredAt
	}

	l.records = append(l.records, rec)
	l.balance.Total = arg.NewTotal
	l.balance.Version++

	return rec, nil
}

// RecentTransactions returns at most limit records of the account, newest first.
func (r *RepoMem) RecentTransactions(ctx context.Context, accountID int32, limit int) ([]domain.TransactionRecord, error) {
	_, items, err := r.Snapshot(ctx, accountID, limit)
	return items, err
}

// Snapshot returns the balance and recent records under the account read lock.
func (r *RepoMem) Snapshot(ctx context.Context, accountID int32, limit int) (domain.Balance, []domain.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.Balance{}, nil, domain.ErrUnavailable
	}

	l, err := r.ledger(accountID)
	if err != nil {
		return domain.Balance{}, nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	items := []domain.TransactionRecord{}

	for i := len(l.records) - 1; i >= 0 && len(items) < limit; i-- {
		items = append(items, l.records[i])
	}

	return l.balance, items, nil
}

// Ping always succeeds for the in-memory store.
func (r *RepoMem) Ping(ctx context.Context) error {
	return nil
}
