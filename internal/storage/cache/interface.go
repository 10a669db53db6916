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

// Package cache 估算结果等小型 JSON 值的本地缓存，供离线查看
package cache

import (
	"context"
	"time"
)

// Store 缓存接口；值以 JSON 编码存放
type Store interface {
	// Set 设置缓存，ttl<=0 表示不过期
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Get 获取缓存到 dest；不存在或已过期时返回包装 ErrNotFound 的错误
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete 幂等删除
	Delete(ctx context.Context, key string) error
	// Exists 检查缓存是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Close 关闭缓存连接
	Close() error
}
