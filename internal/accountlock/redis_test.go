//go:build integration

package accountlock

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/integrationtest"
)

var redisAddress string

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	addr, terminate, err := integrationtest.Redis(context.Background())
	if err != nil {
		log.Println(err)
		return 1
	}
	defer terminate()

	redisAddress = addr

	return m.Run()
}

func newClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: redisAddress})

	t.Cleanup(func() {
		require.NoError(t, client.FlushAll(context.Background()).Err())
		require.NoError(t, client.Close())
	})

	return client
}

func TestRedisAcquireRelease(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	l := NewRedis(client, time.Second, 50*time.Millisecond)

	release, err := l.Acquire(ctx, 7)
	require.NoError(t, err)

	ttl, err := client.PTTL(ctx, Key(7)).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	_, err = l.Acquire(ctx, 7)
	require.ErrorIs(t, err, domain.ErrLockTimeout)

	release()

	n, err := client.Exists(ctx, Key(7)).Result()
	require.NoError(t, err)
	require.Zero(t, n)

	release, err = l.Acquire(ctx, 7)
	require.NoError(t, err)
	release()
}

func TestRedisReleaseKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	l := NewRedis(client, 20*time.Millisecond, time.Second)

	release, err := l.Acquire(ctx, 1)
	require.NoError(t, err)

	// The first lock expires and another owner takes the key.
	time.Sleep(50 * time.Millisecond)

	releaseOther, err := l.Acquire(ctx, 1)
	require.NoError(t, err)

	release()

	n, err := client.Exists(ctx, Key(1)).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	releaseOther()
}

func TestRedisSerializesAcrossLockers(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	other := redis.NewClient(&redis.Options{Addr: redisAddress})
	defer other.Close()

	lockers := []*Redis{
		NewRedis(client, time.Second, 5*time.Second),
		NewRedis(other, time.Second, 5*time.Second),
	}

	const n = 20

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(l *Redis) {
			defer wg.Done()

			release, err := l.Acquire(ctx, 3)
			if err != nil {
				t.Errorf("Acquire returned error: %v", err)
				return
			}
			defer release()

			mu.Lock()
			v := counter
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			counter = v + 1
			mu.Unlock()
		}(lockers[i%len(lockers)])
	}

	wg.Wait()

	require.Equal(t, n, counter)
}

func TestRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	_, err := NewRedis(client, time.Second, time.Second).Acquire(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrUnavailable)
}
