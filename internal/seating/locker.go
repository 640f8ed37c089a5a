package seating

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventLocker serializes seating mutations per event. The returned unlock
// function is safe to call more than once.
type EventLocker interface {
	Lock(ctx context.Context, eventID string) (func(), error)
}

// MemoryLocker serializes mutations within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, eventID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[eventID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[eventID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for seating lock on event %s: %w", eventID, ctx.Err())
	}
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisClient is the part of go-redis RedisLocker uses. *redis.Client and
// redis.UniversalClient satisfy it.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisLocker serializes mutations across processes sharing one Redis.
// A held lock is renewed every third of ttl, so ttl bounds only how long a
// crashed holder blocks the event.
type RedisLocker struct {
	client RedisClient
	ttl    time.Duration
	retry  time.Duration
	log    zerolog.Logger
}

func NewRedisLocker(client RedisClient, ttl time.Duration, log zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  100 * time.Millisecond,
		log:    log.With().Str("component", "RedisLocker").Logger(),
	}
}

func (l *RedisLocker) Lock(ctx context.Context, eventID string) (func(), error) {
	key := lockKey(eventID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire seating lock for event %s: %w", eventID, err)
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for seating lock on event %s: %w", eventID, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(eventID, key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Error().Err(err).Str("event_id", eventID).Msg("Failed to release seating lock")
			}
		})
	}, nil
}

// keepAlive renews the lock until stop is closed or the lock is lost.
func (l *RedisLocker) keepAlive(eventID, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		extended, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to renew seating lock")
			continue
		}
		if extended == 0 {
			l.log.Error().Str("event_id", eventID).Msg("Seating lock expired while held")
			return
		}
	}
}

func lockKey(eventID string) string {
	return "seating:lock:" + eventID
}
