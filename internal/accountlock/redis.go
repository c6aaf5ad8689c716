package accountlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
)

const (
	retryInterval  = 10 * time.Millisecond
	releaseTimeout = time.Second
)

// releaseScript deletes the key only while it still holds the owner's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a distributed lock per account shared by every instance.
type Redis struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis returns a Redis locker. Keys expire after ttl and acquisition
// waits at most timeout.
func NewRedis(client redis.UniversalClient, ttl, timeout time.Duration) *Redis {
	return &Redis{
		client:  client,
		ttl:     ttl,
		timeout: timeout,
	}
}

// Acquire polls SET NX PX until the key is taken or the timeout elapses.
func (r *Redis) Acquire(ctx context.Context, accountID int32) (ReleaseFunc, error) {
	l := zerolog.Ctx(ctx)

	key := Key(accountID)
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()

		switch {
		case err == nil && ok:
			return r.releaser(ctx, key, token), nil
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			l.Warn().Str("key", key).Dur("timeout", r.timeout).Msg("redis lock timeout")
			return nil, domain.ErrLockTimeout
		case err != nil:
			l.Error().Err(err).Str("key", key).Msg("cannot acquire redis lock")
			return nil, domain.ErrUnavailable
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			l.Warn().Str("key", key).Dur("timeout", r.timeout).Msg("redis lock timeout")
			return nil, domain.ErrLockTimeout
		}
	}
}

func (r *Redis) releaser(ctx context.Context, key, token string) ReleaseFunc {
	var once sync.Once

	return func() {
		once.Do(func() { r.release(ctx, key, token) })
	}
}

func (r *Redis) release(ctx context.Context, key, token string) {
	l := zerolog.Ctx(ctx)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
	if err != nil {
		l.Error().Err(err).Str("key", key).Msg("cannot release redis lock")
		return
	}

	if n == 0 {
		l.Warn().Str("key", key).Msg("redis lock expired before release")
	}
}
