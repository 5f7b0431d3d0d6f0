package limiter

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThrottleStore records code-fetch attempts. Acquire is a single atomic
// check-and-record: of two simultaneous calls for the same key, exactly
// one succeeds. Entries expire on their own after the window elapses.
type ThrottleStore interface {
	Acquire(ctx context.Context, key string, window time.Duration) (bool, error)
}

type redisThrottle struct {
	client *redis.Client
	prefix string
}

func (t *redisThrottle) Acquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	// SetNX is the compare-and-set; the TTL is the self-expiry.
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	return t.client.SetNX(ctx, t.prefix+":"+key, stamp, window).Result()
}

// NewRedisThrottle builds a Redis-backed throttle. The caller falls back
// to the in-memory throttle when the ping fails.
func NewRedisThrottle(addr, pass string, db int) (ThrottleStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &redisThrottle{client: client, prefix: "code:throttle"}, nil
}

type memoryThrottle struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	nextGC time.Time
}

// NewMemoryThrottle builds the in-process fallback throttle.
func NewMemoryThrottle() ThrottleStore {
	return &memoryThrottle{
		expiry: make(map[string]time.Time),
		nextGC: time.Now().Add(time.Minute),
	}
}

func (t *memoryThrottle) Acquire(_ context.Context, key string, window time.Duration) (bool, error) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if exp, ok := t.expiry[key]; ok && exp.After(now) {
		return false, nil
	}

	t.expiry[key] = now.Add(window)
	if now.After(t.nextGC) {
		for k, exp := range t.expiry {
			if exp.Before(now) {
				delete(t.expiry, k)
			}
		}
		t.nextGC = now.Add(time.Minute)
	}

	return true, nil
}
