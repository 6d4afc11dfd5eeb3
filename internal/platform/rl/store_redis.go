package rl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKV is the subset of redis.Cmdable the store needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the table as one JSON value under a single key. SET is
// atomic, so readers never see a partial table.
type RedisStore struct {
	client redisKV
	key    string
}

func NewRedisStore(client redisKV, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Table, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("get q-table %s: %w", s.key, err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode q-table %s: %w", s.key, err)
	}
	if t == nil {
		t = make(Table)
	}
	return t, nil
}

func (s *RedisStore) Save(ctx context.Context, t Table) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode q-table: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("set q-table %s: %w", s.key, err)
	}
	return nil
}
