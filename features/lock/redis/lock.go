// Package redis provides a Redis-backed implementation of lock.Lock for
// deployments that run multiple worker processes against one store. Each lock
// is a leased key: a dead worker's lease expires instead of wedging the
// workflow forever.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"goa.design/slumber/lock"
)

const defaultLease = time.Minute

// releaseScript deletes the lock key only when it still carries our token, so
// a lease that expired and was re-acquired elsewhere is never released by the
// previous owner.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type (
	// Lock is a Redis-backed implementation of lock.Lock.
	// It is safe for concurrent use.
	Lock struct {
		rdb    redis.UniversalClient
		lease  time.Duration
		prefix string
	}

	// Options configures the Lock.
	Options struct {
		// Redis is the connection used to store lock keys. Required.
		Redis redis.UniversalClient
		// Lease bounds how long a run may hold a lock before it expires.
		// Defaults to one minute; it must exceed the longest expected
		// activity.
		Lease time.Duration
		// KeyPrefix namespaces lock keys. Defaults to "slumber:lock:".
		KeyPrefix string
	}
)

// New builds a Lock from opts.
func New(opts Options) (*Lock, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	l := &Lock{
		rdb:    opts.Redis,
		lease:  opts.Lease,
		prefix: opts.KeyPrefix,
	}
	if l.lease <= 0 {
		l.lease = defaultLease
	}
	if l.prefix == "" {
		l.prefix = "slumber:lock:"
	}
	return l, nil
}

// Acquire implements lock.Lock. It does not block: when the key is already
// held the caller gets lock.ErrHeld and should skip the run.
func (l *Lock) Acquire(ctx context.Context, workflowID string) (func(), error) {
	if workflowID == "" {
		return nil, errors.New("workflow id is required")
	}
	key := l.prefix + workflowID
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.lease).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, lock.ErrHeld
	}
	release := func() {
		// Releasing is best-effort: an error leaves the key to expire with
		// its lease.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}
	return release, nil
}
