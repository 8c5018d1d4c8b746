package util

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 14})
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestDeduperAcquireOnce(t *testing.T) {
	rdb := newTestRedis(t)
	d := NewDeduper(rdb, time.Minute, nil)
	ctx := context.Background()

	if !d.AcquireOnce(ctx, "observer", "evt-1") {
		t.Fatal("first delivery should be processed")
	}
	if d.AcquireOnce(ctx, "observer", "evt-1") {
		t.Fatal("second delivery should be a duplicate")
	}
	if !d.AcquireOnce(ctx, "other", "evt-1") {
		t.Fatal("handlers dedup independently")
	}
}

func TestRetryCounter(t *testing.T) {
	rdb := newTestRedis(t)
	r := NewRetryCounter(rdb, time.Minute)
	ctx := context.Background()
	key := FormatRetryKey("observer", "evt-1")

	for want := int64(1); want <= 3; want++ {
		got, err := r.IncrementAndGet(ctx, key)
		if err != nil || got != want {
			t.Fatalf("increment = %d, %v; want %d", got, err, want)
		}
	}
	if err := r.Reset(ctx, key); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got, err := r.Get(ctx, key); err != nil || got != 0 {
		t.Fatalf("after reset = %d, %v", got, err)
	}
}
