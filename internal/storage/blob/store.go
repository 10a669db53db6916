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

package blob

import (
	"context"
	"fmt"

	"github.com/bosmith517/scopekit/pkg/config"
)

// NewStore 根据配置创建 Blob 存储
func NewStore(ctx context.Context, cfg config.BlobStoreConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "file":
		return NewFileStore(cfg.Path)
	default:
		return nil, fmt.Errorf("不支持的 blob 存储类型: %s", cfg.Type)
	}
}

// Prune 删除 keep 返回 false 的 blob（无队列项引用的孤立载荷），返回被删除的 id
func Prune(ctx context.Context, s Store, keep func(id string) bool) ([]string, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, id := range ids {
		if keep(id) {
			continue
		}
		if err := s.Remove(ctx, id); err != nil {
			return removed, fmt.Errorf("清理孤立 blob %s 失败: %w", id, err)
		}
		removed = append(removed, id)
	}
	return removed, nil
}
