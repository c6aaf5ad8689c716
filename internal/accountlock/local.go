package accountlock

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// Local is an in-process mutex per account, valid for a single instance only.
type Local struct {
	timeout time.Duration

	mu   sync.Mutex
	sems map[int32]chan struct{}
}

// NewLocal returns a Local locker that waits at most timeout for an account.
func NewLocal(timeout time.Duration) *Local {
	return &Local{
		timeout: timeout,
		sems:    make(map[int32]chan struct{}),
	}
}

func (l *Local) sem(accountID int32) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sems[accountID]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[accountID] = s
	}

	return s
}

// Acquire blocks until the account is free or the timeout elapses.
func (l *Local) Acquire(ctx context.Context, accountID int32) (ReleaseFunc, error) {
	s := l.sem(accountID)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
	case <-timer.C:
		zerolog.Ctx(ctx).Warn().Int32("account_id", accountID).Dur("timeout", l.timeout).Msg("local lock timeout")
		return nil, domain.ErrLockTimeout
	case <-ctx.Done():
		return nil, domain.ErrLockTimeout
	}

	var once sync.Once

	return func() {
		once.Do(func() { <-s })
	}, nil
}
