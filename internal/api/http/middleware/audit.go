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
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/bosmith517/scopekit/pkg/log"
)

// AuditMiddleware 记录改变同步状态的操作（drain、清空、丢弃、触发估算）
type AuditMiddleware struct {
	logger *log.Logger
}

// NewAuditMiddleware 创建审计中间件
func NewAuditMiddleware(logger *log.Logger) *AuditMiddleware {
	return &AuditMiddleware{logger: log.OrDefault(logger)}
}

// AuditAccess 只审计非 GET 请求
func (a *AuditMiddleware) AuditAccess() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		method := string(c.Method())
		if method == "GET" || method == "OPTIONS" {
			c.Next(ctx)
			return
		}
		start := time.Now()
		c.Next(ctx)

		path := string(c.Path())
		resourceType, resourceID := extractResource(path)
		a.logger.Info("操作审计",
			"action", determineAction(method, path),
			"resource_type", resourceType,
			"resource_id", resourceID,
			"status", c.Response.StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// determineAction 根据 HTTP 方法和路径确定操作类型
func determineAction(method string, path string) string {
	switch {
	case strings.HasSuffix(path, "/sync/drain"):
		return "drain"
	case strings.HasSuffix(path, "/sync/clear"):
		return "clear_queue"
	case strings.Contains(path, "/sync/items/") && method == "DELETE":
		return "discard_item"
	case strings.HasSuffix(path, "/estimation/process"):
		return "process_queued_jobs"
	case strings.HasSuffix(path, "/estimation"):
		return "trigger_estimation"
	case strings.HasSuffix(path, "/finalize"):
		return "finalize_visit"
	case path == "/api/visits" && method == "POST":
		return "create_visit"
	}
	return "unknown"
}

// extractResource 从路径提取资源类型和 ID
func extractResource(path string) (resourceType string, resourceID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 4 && parts[1] == "sync" && parts[2] == "items" {
		return "queue_item", parts[3]
	}
	if len(parts) >= 3 && parts[1] == "visits" {
		return "visit", parts[2]
	}
	if len(parts) >= 2 {
		return parts[1], ""
	}
	return "unknown", ""
}
