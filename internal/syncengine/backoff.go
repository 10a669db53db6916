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

package syncengine

import (
	"math/rand/v2"
	"time"
)

// Backoff 指数退避：min(Base*2^attempts, Max)，可选 ±Jitter 比例抖动（结果仍不超过 Max）
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64

	rand func() float64
}

// DefaultBackoff 1s 起步、16s 封顶、无抖动
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 16 * time.Second}
}

// Delay attempts 为本次失败前已累计的失败次数
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := b.Max
	if attempts < 32 {
		if v := b.Base << uint(attempts); v > 0 && v < b.Max {
			d = v
		}
	}
	if b.Jitter <= 0 {
		return d
	}
	rnd := b.rand
	if rnd == nil {
		rnd = rand.Float64
	}
	d = time.Duration(float64(d) * (1 + b.Jitter*(2*rnd()-1)))
	if d > b.Max {
		d = b.Max
	}
	if d < 0 {
		d = 0
	}
	return d
}
