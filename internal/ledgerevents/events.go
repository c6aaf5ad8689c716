// Package ledgerevents publishes notifications about committed transactions.
package ledgerevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// TransactionCommitted is emitted once for every accepted transaction.
type TransactionCommitted struct {
	ID           uuid.UUID   `json:"id"`
	AccountID    int32       `json:"accountId"`
	Kind         domain.Kind `json:"kind"`
	Amount       int64       `json:"amount"`
	Description  string      `json:"description"`
	BalanceAfter int64       `json:"balanceAfter"`
	OccurredAt   time.Time   `json:"occurredAt"`
}

// NewTransactionCommitted builds the event of a stored record.
func NewTransactionCommitted(rec domain.TransactionRecord) TransactionCommitted {
	return TransactionCommitted{
		ID:           rec.ID,
		AccountID:    rec.AccountID,
		Kind:         rec.Kind,
		Amount:       rec.Amount,
		Description:  rec.Description,
		BalanceAfter: rec.BalanceAfter,
		OccurredAt:   rec.OccurredAt,
	}
}

// Nop drops every event. It is used when no brokers are configured.
type Nop struct{}

// NewNop returns a publisher that does nothing.
func NewNop() Nop {
	return Nop{}
}

// Publish discards the event.
func (Nop) Publish(ctx context.Context, event TransactionCommitted) error {
	return nil
}

// Close does nothing.
func (Nop) Close() error {
	return nil
}
