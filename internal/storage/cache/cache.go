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
	"fmt"

	"github.com/bosmith517/scopekit/pkg/config"
)

// NewCache 根据配置创建缓存
func NewCache(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "", "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	case "redis":
		return NewRedisStore(ctx, cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("不支持的缓存类型: %s", cfg.Type)
	}
}
