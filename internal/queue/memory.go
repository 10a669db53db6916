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

package queue

import (
	"context"
	"sync"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

// MemoryStore 内存队列存储，进程退出即丢失，仅用于测试与临时运行
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*Item
	order []string
}

// NewMemoryStore 创建内存队列存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Item)}
}

// Put 插入或覆盖
func (s *MemoryStore) Put(ctx context.Context, item *Item) error {
	if err := item.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[item.ID]; !ok {
		s.order = append(s.order, item.ID)
	}
	s.byID[item.ID] = item.Clone()
	return nil
}

// Get 按 id 读取
func (s *MemoryStore) Get(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.byID[id]
	if !ok {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "queue item %s", id)
	}
	return it.Clone(), nil
}

// Remove 幂等删除
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return nil
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List 按插入顺序列出
func (s *MemoryStore) List(ctx context.Context) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

// Len 当前项数
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

// Close 无资源需释放
func (s *MemoryStore) Close() error { return nil }
