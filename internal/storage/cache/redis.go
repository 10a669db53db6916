// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

const redisKeyPrefix = "scopekit:cache:"

// RedisStore Redis 缓存，用于同一站点多台设备共享估算结果
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 连接 Redis 并 Ping
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 redis 失败: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Set 设置缓存
func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

// Get 获取缓存
func (s *RedisStore) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "cache key %s", key)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Exists 检查缓存是否存在
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+key).Result()
	return n > 0, err
}

// Close 关闭连接
func (s *RedisStore) Close() error { return s.client.Close() }
