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

// Package queue 待同步队列项的持久化（元数据命名空间，不含二进制载荷）
package queue

import (
	"context"
	"fmt"

	"github.com/bosmith517/scopekit/pkg/config"
)

// Store 队列元数据存储。
// List 按首次 Put 的顺序返回；覆盖写不改变位置。Remove 对不存在的 id 为 no-op。
// Put 返回即已持久化。
type Store interface {
	Put(ctx context.Context, item *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Item, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// NewStore 根据配置创建队列存储
func NewStore(ctx context.Context, cfg config.QueueStoreConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "postgres":
		return NewPgStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的队列存储类型: %s", cfg.Type)
	}
}
