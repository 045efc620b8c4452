package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const drainLockKey = "drain_lock"

// releaseScript deletes the lock only if this instance still holds it, so a
// slow drain cycle whose lock expired cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// DrainLock is a Redis-backed single-flight lock so concurrent service
// instances do not run overlapping drain cycles.
type DrainLock struct {
	client *redis.Client
	token  string
	ttl    time.Duration
}

func NewDrainLock(client *redis.Client, ttl time.Duration) *DrainLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &DrainLock{
		client: client,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire takes the lock if free. The TTL guards against a crashed holder
// wedging the queue forever.
func (l *DrainLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, drainLockKey, l.token, l.ttl).Result()
}

// Release frees the lock if this instance still holds it.
func (l *DrainLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{drainLockKey}, l.token).Err()
}
