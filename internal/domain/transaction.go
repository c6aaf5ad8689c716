package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	// ErrValidation indicates a structurally invalid transaction request.
	ErrValidation = errors.New("invalid transaction")
	// ErrInsufficientLimit indicates that a debit would push the balance below the credit limit.
	ErrInsufficientLimit = errors.New("insufficient credit limit")
	// ErrConflict indicates that the balance changed between read and commit.
	ErrConflict = errors.New("balance version conflict")
	// ErrTransient indicates that the admission gave up after repeated conflicts.
	ErrTransient = errors.New("ledger busy, retry later")
	// ErrUnavailable indicates that the ledger store cannot be reached.
	ErrUnavailable = errors.New("ledger store unavailable")
	// ErrLockTimeout indicates that the account lock was not acquired in time.
	ErrLockTimeout = errors.New("account lock timeout")
)

const (
	// MaxDescriptionLen is the maximum length of a transaction description in characters.
	MaxDescriptionLen = 10
	// MaxAmount is the largest amount a single transaction may carry.
	MaxAmount = math.MaxInt32
)

// Kind is the direction of a transaction.
type Kind string

// Supported transaction kinds.
const (
	Credit Kind = "credit"
	Debit  Kind = "debit"
)

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == Credit || k == Debit
}

// TransactionRequest is the input of an admission.
type TransactionRequest struct {
	Amount      int64  `json:"amount"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

// Validate checks the structural rules of the request.
func (r TransactionRequest) Validate() error {
	if r.Amount < 0 || r.Amount > MaxAmount {
		return fmt.Errorf("%w: amount must be between 0 and %d", ErrValidation, MaxAmount)
	}

	if !r.Kind.Valid() {
		return fmt.Errorf("%w: kind must be credit or debit", ErrValidation)
	}

	if !ValidDescription(r.Description) {
		return fmt.Errorf("%w: description must have 1 to %d characters", ErrValidation, MaxDescriptionLen)
	}

	return nil
}

// ValidDescription reports whether s is a non-blank text of at most MaxDescriptionLen characters.
func ValidDescription(s string) bool {
	return strings.TrimSpace(s) != "" && utf8.RuneCountInString(s) <= MaxDescriptionLen
}

// Apply returns the balance total after applying the request to total.
//
// A result that does not fit int64 is reported as ErrValidation.
func (r TransactionRequest) Apply(total int64) (int64, error) {
	if r.Kind == Debit {
		if total < math.MinInt64+r.Amount {
			return 0, fmt.Errorf("%w: balance underflow", ErrValidation)
		}

		return total - r.Amount, nil
	}

	if total > math.MaxInt64-r.Amount {
		return 0, fmt.Errorf("%w: balance overflow", ErrValidation)
	}

	return total + r.Amount, nil
}

// TransactionRecord is an accepted transaction appended to the account log.
type TransactionRecord struct {
	ID           uuid.UUID `json:"id"`
	AccountID    int32     `json:"accountId"`
	Kind         Kind      `json:"kind"`
	Amount       int64     `json:"amount"`
	Description  string    `json:"description"`
	BalanceAfter int64     `json:"balanceAfter"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// CommitParams is the input of a conditional ledger commit.
type CommitParams struct {
	AccountID       int32
	ExpectedVersion int64
	NewTotal        int64
	Record          TransactionRecord
}

// TransactionResult is returned to the client after a successful admission.
type TransactionResult struct {
	CreditLimit int64 `json:"creditLimit"`
	Balance     int64 `json:"balance"`
}
