// Package transactionservice manages admission of credits and debits into account ledgers.
package transactionservice

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/accountlock"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerevents"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
)

// Store provides data access layer interface needed by the admission.
//
//go:generate mockgen -source service.go -destination service_mock.go -package transactionservice
type Store interface {
	CurrentBalance(ctx context.Context, accountID int32) (domain.Balance, error)
	Commit(ctx context.Context, arg domain.CommitParams) (domain.TransactionRecord, error)
}

// Registry resolves provisioned accounts.
type Registry interface {
	Lookup(id int32) (domain.Account, error)
}

// Locker serializes admissions of one account.
type Locker interface {
	Acquire(ctx context.Context, accountID int32) (accountlock.ReleaseFunc, error)
}

// Publisher is notified about every committed transaction.
type Publisher interface {
	Publish(ctx context.Context, event ledgerevents.TransactionCommitted) error
}

// State is the admission progress of a single request.
type State string

// Admission states.
const (
	Received   State = "received"
	Validated  State = "validated"
	Serialized State = "serialized"
	Evaluated  State = "evaluated"
	Committed  State = "committed"
	Rejected   State = "rejected"
	Failed     State = "failed"
)

const (
	retryInitialInterval  = 5 * time.Millisecond
	retryMaxInterval      = 100 * time.Millisecond
	defaultStoreTimeout   = 2 * time.Second
	defaultPublishTimeout = 250 * time.Millisecond
)

// Service facilitates the admission of transactions.
type Service struct {
	store          Store
	registry       Registry
	locker         Locker
	publisher      Publisher
	maxRetries     int
	storeTimeout   time.Duration
	publishTimeout time.Duration
}

// New returns transaction service struct to manage admission logic.
func New(store Store, registry Registry, locker Locker, publisher Publisher, config configpkg.Config) *Service {
	storeTimeout := config.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	publishTimeout := config.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	return &Service{
		store:          store,
		registry:       registry,
		locker:         locker,
		publisher:      publisher,
		maxRetries:     config.AdmissionMaxRetries,
		storeTimeout:   storeTimeout,
		publishTimeout: publishTimeout,
	}
}

// Create admits req into the ledger of the account.
//
// The checks run in this order: account exists, request is well formed,
// the resulting balance stays within the credit limit. A rejected request
// leaves the ledger untouched.
func (s *Service) Create(ctx context.Context, accountID int32, req domain.TransactionRequest) (domain.TransactionResult, error) {
	l := zerolog.Ctx(ctx).With().Int32("account_id", accountID).Logger()
	ctx = l.WithContext(ctx)

	l.Trace().Str("state", string(Received)).Send()

	account, err := s.registry.Lookup(accountID)
	if err != nil {
		l.Debug().Str("state", string(Rejected)).Err(err).Send()
		return domain.TransactionResult{}, err
	}

	if err := req.Validate(); err != nil {
		l.Debug().Str("state", string(Rejected)).Err(err).Send()
		return domain.TransactionResult{}, err
	}

	l.Trace().Str("state", string(Validated)).Send()

	rec, err := s.admit(ctx, account, req)
	if err != nil {
		state := Failed
		if errors.Is(err, domain.ErrInsufficientLimit) || errors.Is(err, domain.ErrValidation) {
			state = Rejected
		}

		l.Debug().Str("state", string(state)).Err(err).Send()

		return domain.TransactionResult{}, err
	}

	l.Debug().Str("state", string(Committed)).Int64("balance", rec.BalanceAfter).Send()

	s.publish(context.WithoutCancel(ctx), rec)

	return domain.TransactionResult{
		CreditLimit: account.CreditLimit,
		Balance:     rec.BalanceAfter,
	}, nil
}

// admit runs the serialized part of the admission and releases the lock on return.
func (s *Service) admit(ctx context.Context, account domain.Account, req domain.TransactionRequest) (domain.TransactionRecord, error) {
	l := zerolog.Ctx(ctx)

	release, err := s.locker.Acquire(ctx, account.ID)
	if err != nil {
		return domain.TransactionRecord{}, err
	}
	defer release()

	l.Trace().Str("state", string(Serialized)).Send()

	// Past this point a client hang up must not abandon the commit.
	ctx = context.WithoutCancel(ctx)

	rec := domain.TransactionRecord{
		ID:          uuid.New(),
		Kind:        req.Kind,
		Amount:      req.Amount,
		Description: req.Description,
	}

	var committed domain.TransactionRecord

	attempt := func() error {
		b, err := s.currentBalance(ctx, account.ID)
		if err != nil {
			return backoff.Permanent(err)
		}

		candidate, err := req.Apply(b.Total)
		if err != nil {
			return backoff.Permanent(err)
		}

		if req.Kind == domain.Debit && !account.WithinLimit(candidate) {
			return backoff.Permanent(domain.ErrInsufficientLimit)
		}

		l.Trace().Str("state", string(Evaluated)).Int64("version", b.Version).Int64("candidate", candidate).Send()

		committed, err = s.commit(ctx, domain.CommitParams{
			AccountID:       account.ID,
			ExpectedVersion: b.Version,
			NewTotal:        candidate,
			Record:          rec,
		})
		if errors.Is(err, domain.ErrConflict) {
			l.Trace().Int64("version", b.Version).Msg("version conflict, retrying")
			return err
		}

		if err != nil {
			return backoff.Permanent(err)
		}

		return nil
	}

	if err := backoff.Retry(attempt, s.retryPolicy()); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			l.Warn().Int("max_retries", s.maxRetries).Msg("admission retries exhausted")
			return domain.TransactionRecord{}, domain.ErrTransient
		}

		return domain.TransactionRecord{}, err
	}

	return committed, nil
}

func (s *Service) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0

	return backoff.WithMaxRetries(b, uint64(s.maxRetries))
}

func (s *Service) currentBalance(ctx context.Context, accountID int32) (domain.Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.store.CurrentBalance(ctx, accountID)
}

func (s *Service) commit(ctx context.Context, arg domain.CommitParams) (domain.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	return s.store.Commit(ctx, arg)
}

// publish is best effort and bounded by publishTimeout.
func (s *Service) publish(ctx context.Context, rec domain.TransactionRecord) {
	ctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, ledgerevents.NewTransactionCommitted(rec)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("transaction_id", rec.ID.String()).Msg("cannot publish transaction event")
	}
}
