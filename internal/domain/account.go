// Package domain provides definitions of all ledger entities.
package domain

import "errors"

var (
	// ErrAccountNotFound indicates that the account is not provisioned.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInternal indicates internal server error.
	ErrInternal = errors.New("internal")
)

// Account is a provisioned ledger account.
//
// Both fields are fixed for the lifetime of the process.
type Account struct {
	ID          int32 `json:"id"`
	CreditLimit int64 `json:"creditLimit"`
}

// Balance is the committed balance of an account.
//
// Version grows by one on every commit and is the compare-and-swap key.
type Balance struct {
	AccountID int32 `json:"accountId"`
	Total     int64 `json:"total"`
	Version   int64 `json:"version"`
}

// WithinLimit reports whether total respects the account credit limit.
func (a Account) WithinLimit(total int64) bool {
	return total >= -a.CreditLimit
}
