package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

// lockTTL only bounds how long a crashed holder blocks the record; a live
// holder extends the lock every lockTTL/3 until it unlocks.
const (
	lockKeyPrefix = "synclock:"
	lockTTL       = 30 * time.Second
	lockRetry     = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript pushes the expiry forward only if the lock still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisRecordLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisRecordLocker(client *redis.Client, log *slog.Logger) *RedisRecordLocker {
	return &RedisRecordLocker{
		client: client,
		ttl:    lockTTL,
		log:    log.With(slog.String("component", "record_locker")),
	}
}

// Lock blocks until the key is acquired or ctx is done.
func (l *RedisRecordLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock for %s: %w", key, ctx.Err())
		case <-time.After(lockRetry):
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// the request context may already be cancelled here
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.log.Warn("failed to release lock", slog.String("key", redisKey), slog.Any("error", err))
			}
		})
	}, nil
}

// keepAlive extends the lock while it is held so a slow store call cannot
// outlive it.
func (l *RedisRecordLocker) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			held, err := extendScript.Run(ctx, l.client, []string{redisKey}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.log.Warn("failed to extend lock", slog.String("key", redisKey), slog.Any("error", err))
				continue
			}
			if held == 0 {
				l.log.Warn("lock lost before release", slog.String("key", redisKey))
				return
			}
		}
	}
}

// LocalRecordLocker is the single-process fallback when no Redis is configured.
type LocalRecordLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalRecordLocker() *LocalRecordLocker {
	return &LocalRecordLocker{locks: make(map[string]*localLock)}
}

func (l *LocalRecordLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lk, false)
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, lk, true) })
	}, nil
}

func (l *LocalRecordLocker) release(key string, lk *localLock, held bool) {
	if held {
		<-lk.ch
	}
	l.mu.Lock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}
