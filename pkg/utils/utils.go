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

// Package utils 提供配置归一化用的小工具。
package utils

import "time"

// Number 可按 <=0 判定“未设置”的数值类型
type Number interface {
	~int | ~int64 | ~float64
}

// CoalesceString 返回第一个非空字符串；全部为空时返回 ""
func CoalesceString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Positive 若 v<=0 则返回 defaultVal
func Positive[T Number](v, defaultVal T) T {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// PositiveDuration 与 Positive 相同，专用于 time.Duration
func PositiveDuration(d, defaultVal time.Duration) time.Duration {
	return Positive(d, defaultVal)
}
