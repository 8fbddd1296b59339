package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "image-worker:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker keeps at most one holder per key across every worker node
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	waitTimeout   time.Duration
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder blocks
// others; waitTimeout bounds how long Acquire waits for a busy key.
func NewRedisLocker(client *redis.Client, ttl, retryInterval, waitTimeout time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
	}
	if waitTimeout <= 0 {
		waitTimeout = ttl
	}

	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		waitTimeout:   waitTimeout,
	}
}

// Key returns the redis key guarding a job id
func Key(jobID string) string {
	return keyPrefix + jobID
}

func (l *RedisLocker) Acquire(ctx context.Context, jobID string) (Lease, error) {
	key := Key(jobID)
	token := uuid.NewString()

	deadline := time.NewTimer(l.waitTimeout)
	defer deadline.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return &redisLease{client: l.client, key: key, token: token, ttl: l.ttl}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		case <-time.After(l.retryInterval):
		}
	}
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func (l *redisLease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}
