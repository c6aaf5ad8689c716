package accountlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/domain"
)

func TestNone(t *testing.T) {
	release, err := NewNone().Acquire(context.Background(), 1)
	require.NoError(t, err)

	release()
}

func TestKey(t *testing.T) {
	require.Equal(t, "account:42", Key(42))
}

func TestLocalMutualExclusion(t *testing.T) {
	l := NewLocal(time.Second)

	const n = 50

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			release, err := l.Acquire(context.Background(), 1)
			if err != nil {
				t.Errorf("Acquire returned error: %v", err)
				return
			}
			defer release()

			cur := atomic.AddInt32(&inside, 1)
			for {
				seen := atomic.LoadInt32(&maxSeen)
				if cur <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, cur) {
					break
				}
			}

			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}

	wg.Wait()

	require.Equal(t, int32(1), maxSeen)
}

func TestLocalTimeout(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)

	release, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrLockTimeout)

	// Other accounts are not blocked.
	releaseOther, err := l.Acquire(context.Background(), 2)
	require.NoError(t, err)
	releaseOther()

	release()
	release()

	release, err = l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}

func TestLocalCanceledContext(t *testing.T) {
	l := NewLocal(time.Minute)

	release, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.Acquire(ctx, 1)
	require.ErrorIs(t, err, domain.ErrLockTimeout)
}
