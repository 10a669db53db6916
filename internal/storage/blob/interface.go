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

// Package blob 队列项二进制载荷的持久化，与队列元数据分开存放以便廉价列举元数据
package blob

import "context"

// Store 二进制载荷存储，键与所属队列项 id 相同
type Store interface {
	// Put 写入或覆盖；返回即已落盘
	Put(ctx context.Context, id string, data []byte) error
	// Get 读取；不存在时 ok=false 且 err=nil
	Get(ctx context.Context, id string) (data []byte, ok bool, err error)
	// Remove 幂等删除
	Remove(ctx context.Context, id string) error
	// List 列出全部 id
	List(ctx context.Context) ([]string, error)
	// Close 关闭存储
	Close() error
}
