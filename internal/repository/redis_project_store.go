package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
)

const (
	redisProjectPrefix = "escrow:project:"
	redisProjectSeq    = "escrow:project:seq"
)

// RedisProjectStore keeps each project as a JSON string under
// escrow:project:<id> and allocates ids with INCR on escrow:project:seq.
type RedisProjectStore struct {
	rdb *redis.Client
}

func NewRedisProjectStore(rdb *redis.Client) *RedisProjectStore {
	return &RedisProjectStore{rdb: rdb}
}

func projectKey(id uint64) string {
	return redisProjectPrefix + strconv.FormatUint(id, 10)
}

func (s *RedisProjectStore) Get(ctx context.Context, id uint64) (*escrow.Project, error) {
	data, err := s.rdb.Get(ctx, projectKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, escrow.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %d: %w", id, err)
	}
	var p escrow.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode project %d: %w", id, err)
	}
	return &p, nil
}

func (s *RedisProjectStore) Put(ctx context.Context, p *escrow.Project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode project %d: %w", p.ID, err)
	}
	if err := s.rdb.Set(ctx, projectKey(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store project %d: %w", p.ID, err)
	}
	return nil
}

func (s *RedisProjectStore) Exists(ctx context.Context, id uint64) (bool, error) {
	n, err := s.rdb.Exists(ctx, projectKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check project %d: %w", id, err)
	}
	return n == 1, nil
}

func (s *RedisProjectStore) NextID(ctx context.Context) (uint64, error) {
	id, err := s.rdb.Incr(ctx, redisProjectSeq).Uint64()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate project id: %w", err)
	}
	return id, nil
}

func (s *RedisProjectStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.rdb.Get(ctx, redisProjectSeq).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read project sequence: %w", err)
	}
	return n, nil
}

var _ escrow.Store = (*RedisProjectStore)(nil)
