// Package runlock serializes auditor runs across hosts. The ledger file
// assumes a single writer, so overlapping runs against the same ledger are
// unsafe; a redis lock enforces single-instance scheduling where cron alone
// cannot.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run currently holds the lock.
var ErrHeld = errors.New("runlock: lock held by another run")

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock is a single-instance run lock backed by redis.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// New creates a lock against the given redis address. TTL bounds how long a
// crashed run can block the next one.
func New(addr, password, key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Lock{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		key:    key,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire takes the lock or fails with ErrHeld.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("runlock: acquire: %w", err)
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

// Release drops the lock if this run still owns it. Releasing a lock that
// expired and was re-acquired elsewhere is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result(); err != nil {
		return fmt.Errorf("runlock: release: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func (l *Lock) Close() error {
	return l.client.Close()
}
