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

package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"
)

// Middleware 中间件管理器
type Middleware struct {
	limiter *rate.Limiter
}

// NewMiddleware 创建中间件管理器；rps<=0 时不限流
func NewMiddleware(rps float64, burst int) *Middleware {
	m := &Middleware{}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return m
}

// CORS 本机 UI/CLI 跨域访问
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// RateLimit 控制接口限流（令牌桶）
func (m *Middleware) RateLimit() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if m.limiter != nil && !m.limiter.Allow() {
			c.AbortWithStatusJSON(consts.StatusTooManyRequests, map[string]string{
				"error": "请求过于频繁，请稍后再试",
			})
			return
		}
		c.Next(ctx)
	}
}
