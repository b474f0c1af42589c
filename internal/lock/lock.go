// Package lock provides mutual exclusion across the whole pipeline. Runs for
// different dates share the users table, so one lock guards every run.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run owns the lock.
var ErrHeld = errors.New("lock: pipeline is already running")

// Release gives the lock back.
type Release func(ctx context.Context) error

// Locker hands out the pipeline lock.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// Local excludes runs within one process: the scheduler and API triggers
// share it. It never waits; a held lock is ErrHeld.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Acquire(context.Context) (Release, error) {
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a single-key lock with a TTL so a crashed holder cannot wedge
// the pipeline forever.
type Redis struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

func NewRedis(client redis.UniversalClient, key string, ttl time.Duration) *Redis {
	return &Redis{client: client, key: key, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", r.key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			return fmt.Errorf("lock: release %s: %w", r.key, err)
		}
		return nil
	}, nil
}
