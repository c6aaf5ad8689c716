// Package accountlock serializes admission work on a single account.
//
// A lock only removes contention. The versioned compare-and-swap in the
// ledger store stays the source of truth, so a lock lost to expiry can never
// produce a lost update.
package accountlock

import (
	"context"
	"strconv"
)

// ReleaseFunc frees a previously acquired lock. It is safe to call once.
type ReleaseFunc func()

func noopRelease() {}

// Key returns the lock key of the account.
func Key(accountID int32) string {
	return "account:" + strconv.FormatInt(int64(accountID), 10)
}

// None does not serialize anything. Contention is resolved by the store CAS.
type None struct{}

// NewNone returns a locker that never blocks.
func NewNone() None {
	return None{}
}

// Acquire returns immediately.
func (None) Acquire(ctx context.Context, accountID int32) (ReleaseFunc, error) {
	return noopRelease, nil
}
