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
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

// MemoryStore 内存缓存存储实现
type MemoryStore struct {
	items map[string]*cacheItem
	mu    sync.RWMutex
	now   func() time.Time
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

func (c *cacheItem) expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

// NewMemoryStore 创建新的内存缓存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*cacheItem), now: time.Now}
}

// Set 设置缓存
func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	item := &cacheItem{value: data}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

// Get 获取缓存
func (s *MemoryStore) Get(ctx context.Context, key string, dest interface{}) error {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok || item.expired(s.now()) {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "cache key %s", key)
	}
	if err := json.Unmarshal(item.value, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Exists 检查缓存是否存在
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[key]
	return ok && !item.expired(s.now()), nil
}

// Close 关闭缓存连接
func (s *MemoryStore) Close() error { return nil }
