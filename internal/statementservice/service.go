// Package statementservice assembles account statements.
package statementservice

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
)

const defaultLimit = 10

// Store provides data access layer interface needed by statement service.
//
//go:generate mockgen -source service.go -destination service_mock.go -package statementservice
type Store interface {
	Snapshot(ctx context.Context, accountID int32, limit int) (domain.Balance, []domain.TransactionRecord, error)
}

// Registry resolves provisioned accounts.
type Registry interface {
	Lookup(id int32) (domain.Account, error)
}

// Service facilitates statement service layer logic.
type Service struct {
	store        Store
	registry     Registry
	limit        int
	storeTimeout time.Duration
	now          func() time.Time
}

// New returns statement service struct to manage statement logic.
func New(store Store, registry Registry, config configpkg.Config) *Service {
	limit := config.StatementLimit
	if limit < 1 {
		limit = defaultLimit
	}

	storeTimeout := config.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 2 * time.Second
	}

	return &Service{
		store:        store,
		registry:     registry,
		limit:        limit,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Get returns the current balance and the most recent transactions of the account.
//
// Balance and transactions come from one consistent snapshot. A snapshot whose
// newest record disagrees with the balance is reported as domain.ErrInternal.
func (s *Service) Get(ctx context.Context, accountID int32) (domain.Statement, error) {
	l := zerolog.Ctx(ctx)

	account, err := s.registry.Lookup(accountID)
	if err != nil {
		return domain.Statement{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	b, items, err := s.store.Snapshot(ctx, accountID, s.limit)
	if err != nil {
		return domain.Statement{}, err
	}

	if len(items) > 0 && items[0].BalanceAfter != b.Total {
		l.Error().
			Int32("account_id", accountID).
			Int64("total", b.Total).
			Int64("balance_after", items[0].BalanceAfter).
			Msg("torn ledger snapshot")

		return domain.Statement{}, domain.ErrInternal
	}

	if len(items) == 0 && b.Total != 0 {
		l.Error().Int32("account_id", accountID).Int64("total", b.Total).Msg("balance without transactions")
		return domain.Statement{}, domain.ErrInternal
	}

	return domain.Statement{
		Balance: domain.StatementBalance{
			Total:       b.Total,
			AsOf:        s.now().UTC(),
			CreditLimit: account.CreditLimit,
		},
		Transactions: items,
	}, nil
}
