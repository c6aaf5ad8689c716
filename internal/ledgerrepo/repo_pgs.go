// Package ledgerrepo manages the repository layer of account ledgers.
package ledgerrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

// RepoPGS facilitates ledger repository layer logic on Postgres.
type RepoPGS struct {
	db   dbpkg.SQLInterface
	conn *sql.DB
}

// NewRepoPGS returns ledger RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		db:   db,
		conn: db,
	}
}

const provisionQuery = `
INSERT INTO balances (account_id)
VALUES ($1)
ON CONFLICT (account_id) DO NOTHING
`

// Provision creates a zero balance for every account that has none yet.
func (r *RepoPGS) Provision(ctx context.Context, accounts []domain.Account) error {
	l := zerolog.Ctx(ctx)

	for _, a := range accounts {
		if _, err := r.db.ExecContext(ctx, provisionQuery, a.ID); err != nil {
			l.Error().Err(err).Int32("account_id", a.ID).Msg("cannot provision balance")
			return mapErr(err)
		}
	}

	return nil
}

const getBalanceQuery = `
SELECT
	account_id, total, version
FROM balances
WHERE account_id = $1
`

// CurrentBalance returns the latest committed balance of the account.
func (r *RepoPGS) CurrentBalance(ctx context.Context, accountID int32) (domain.Balance, error) {
	return getBalance(ctx, r.db, accountID)
}

func getBalance(ctx context.Context, q dbpkg.SQLInterface, accountID int32) (domain.Balance, error) {
	l := zerolog.Ctx(ctx)

	var b domain.Balance

	err := q.QueryRowContext(ctx, getBalanceQuery, accountID).Scan(
		&b.AccountID,
		&b.Total,
		&b.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Int32("account_id", accountID).Send()

		return b, mapErr(err)
	}

	return b, nil
}

const casBalanceQuery = `
UPDATE balances
SET total = $1, version = version + 1, updated_at = now()
WHERE account_id = $2 AND version = $3
RETURNING version
`

const appendTransactionQuery = `
INSERT INTO
    transactions (id, account_id, kind, amount, description, balance_after, occurred_at)
VALUES
    ($1, $2, $3, $4, $5, $6, clock_timestamp())
RETURNING occurred_at
`

// Commit replaces the balance and appends the record within a single db transaction.
//
// The balance is only replaced when its version still equals arg.ExpectedVersion,
// otherwise domain.ErrConflict is returned and nothing is written. The occurred_at
// timestamp is taken while the balance row is locked, so per account it follows the
// commit order.
func (r *RepoPGS) Commit(ctx context.Context, arg domain.CommitParams) (domain.TransactionRecord, error) {
	l := zerolog.Ctx(ctx)

	rec := arg.Record
	rec.AccountID = arg.AccountID
	rec.BalanceAfter = arg.NewTotal

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		l.Error().Err(err).Send()
		return domain.TransactionRecord{}, mapErr(err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	var version int64

	err = tx.QueryRowContext(ctx, casBalanceQuery, arg.NewTotal, arg.AccountID, arg.ExpectedVersion).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			l.Debug().Int32("account_id", arg.AccountID).Int64("expected_version", arg.ExpectedVersion).Msg("balance version moved")
			return domain.TransactionRecord{}, domain.ErrConflict
		}

		l.Error().Err(err).Msgf("Commit(ctx, %+v)", arg)

		return domain.TransactionRecord{}, mapErr(err)
	}

	err = tx.QueryRowContext(ctx, appendTransactionQuery,
		rec.ID,
		rec.AccountID,
		rec.Kind,
		rec.Amount,
		rec.Description,
		rec.BalanceAfter,
	).Scan(&rec.OccurredAt)
	if err != nil {
		l.Error().Err(err).Msgf("Commit(ctx, %+v)", arg)
		return domain.TransactionRecord{}, mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return domain.TransactionRecord{}, mapErr(err)
	}

	rec.OccurredAt = rec.OccurredAt.UTC()

	return rec, nil
}

const recentTransactionsQuery = `
SELECT
	id, account_id, kind, amount, description, balance_after, occurred_at
FROM transactions
WHERE account_id = $1
ORDER BY occurred_at DESC, seq DESC
LIMIT $2
`

// RecentTransactions returns at most limit records of the account, newest first.
func (r *RepoPGS) RecentTransactions(ctx context.Context, accountID int32, limit int) ([]domain.TransactionRecord, error) {
	return recentTransactions(ctx, r.db, accountID, limit)
}

func recentTransactions(ctx context.Context, q dbpkg.SQLInterface, accountID int32, limit int) ([]domain.TransactionRecord, error) {
	l := zerolog.Ctx(ctx)

	rows, err := q.QueryContext(ctx, recentTransactionsQuery, accountID, limit)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := []domain.TransactionRecord{}

	for rows.Next() {
		var t domain.TransactionRecord
		if err := rows.Scan(
			&t.ID,
			&t.AccountID,
			&t.Kind,
			&t.Amount,
			&t.Description,
			&t.BalanceAfter,
			&t.OccurredAt,
		); err != nil {
			l.Error().Err(err).Send()
			return nil, mapErr(err)
		}

		t.OccurredAt = t.OccurredAt.UTC()
		items = append(items, t)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, mapErr(err)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, mapErr(err)
	}

	return items, nil
}

// Snapshot reads the balance and the most recent records in one read-only
// repeatable read transaction, so both come from the same committed state.
func (r *RepoPGS) Snapshot(ctx context.Context, accountID int32, limit int) (domain.Balance, []domain.TransactionRecord, error) {
	l := zerolog.Ctx(ctx)

	tx, err := r.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		l.Error().Err(err).Send()
		return domain.Balance{}, nil, mapErr(err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	b, err := getBalance(ctx, tx, accountID)
	if err != nil {
		return domain.Balance{}, nil, err
	}

	items, err := recentTransactions(ctx, tx, accountID, limit)
	if err != nil {
		return domain.Balance{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return domain.Balance{}, nil, mapErr(err)
	}

	return b, items, nil
}

// Ping checks that the database is reachable.
func (r *RepoPGS) Ping(ctx context.Context) error {
	if err := r.conn.PingContext(ctx); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("database ping failed")
		return domain.ErrUnavailable
	}

	return nil
}
