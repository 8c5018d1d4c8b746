package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestClient connects to REDIS_ADDR and skips when it is unset.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	l := NewRedisLocker(rdb, time.Second, 100*time.Millisecond, nil)
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	if _, err := l.Lock(ctx, key); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	unlock()
	unlock()

	unlock2, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}

func TestRedisLockerRenewsWhileHeld(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	l := NewRedisLocker(rdb, 60*time.Millisecond, 20*time.Millisecond, nil)
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	// Hold well past the ttl; a second caller must stay locked out.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := l.Lock(ctx, key); !errors.Is(err, ErrLockTimeout) {
			t.Fatalf("lease expired while held: %v", err)
		}
		time.Sleep(30 * time.Millisecond)
	}
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	key := "test:" + uuid.NewString()

	l := NewRedisLocker(rdb, 60*time.Millisecond, time.Second, nil)
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Someone else takes the key; renewal must neither extend nor release it.
	if err := rdb.Set(ctx, l.prefix+key, "other", time.Second).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	unlock()

	got, err := rdb.Get(ctx, l.prefix+key).Result()
	if err != nil || got != "other" {
		t.Fatalf("foreign lock was released: %q %v", got, err)
	}
	ttl, err := rdb.PTTL(ctx, l.prefix+key).Result()
	if err != nil || ttl < 500*time.Millisecond {
		t.Fatalf("foreign lock ttl was touched: %v %v", ttl, err)
	}
	_ = rdb.Del(ctx, l.prefix+key).Err()
}
