package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	// DB 15 is flushed by the test.
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
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

func TestRedisProjectStore(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	s := NewRedisProjectStore(rdb)

	count, err := s.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("count = %d, %v", count, err)
	}

	id, err := s.NextID(ctx)
	if err != nil || id != 1 {
		t.Fatalf("next id = %d, %v", id, err)
	}
	if _, err := s.Get(ctx, id); !errors.Is(err, escrow.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}

	p := &escrow.Project{
		ID:              id,
		Client:          "client",
		Freelancer:      "freelancer",
		Objectives:      []escrow.Objective{{Price: 100, DepositPaid: 50, Funded: true}},
		ObjectivesCount: 1,
		Held:            50,
	}
	if err := s.Put(ctx, p); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Held != 50 || got.Objectives[0].DepositPaid != 50 || !got.Objectives[0].Funded {
		t.Fatalf("unexpected project %+v", got)
	}
	count, _ = s.Count(ctx)
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
