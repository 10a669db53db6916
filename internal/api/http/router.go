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

package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"github.com/bosmith517/scopekit/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	audit      *middleware.AuditMiddleware
	global     []app.HandlerFunc
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware, audit *middleware.AuditMiddleware) *Router {
	return &Router{handler: handler, middleware: mw, audit: audit}
}

// Use 追加全局中间件（如链路追踪）；须在 Build 之前调用，先于 CORS 执行
func (r *Router) Use(mw ...app.HandlerFunc) {
	r.global = append(r.global, mw...)
}

// Build 创建 Hertz 服务并注册路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(opts...)
	if len(r.global) > 0 {
		h.Use(r.global...)
	}
	h.Use(r.middleware.CORS())
	if r.audit != nil {
		h.Use(r.audit.AuditAccess())
	}

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	sync := api.Group("/sync")
	{
		sync.GET("/status", r.handler.SyncStatus)
		sync.GET("/items", r.handler.SyncItems)
		sync.GET("/orphans", r.handler.SyncOrphans)
		sync.POST("/drain", r.middleware.RateLimit(), r.handler.SyncDrain)
		sync.POST("/clear", r.middleware.RateLimit(), r.handler.SyncClear)
		sync.DELETE("/items/:id", r.middleware.RateLimit(), r.handler.DiscardItem)
	}

	visits := api.Group("/visits")
	{
		if r.handler.visits != nil {
			visits.POST("", r.middleware.RateLimit(), r.handler.CreateVisit)
			visits.POST("/:id/finalize", r.middleware.RateLimit(), r.handler.FinalizeVisit)
			visits.GET("/:id/status", r.handler.VisitStatus)
		}
		visits.POST("/:id/estimation", r.middleware.RateLimit(), r.handler.TriggerEstimation)
		visits.GET("/:id/estimate", r.handler.GetEstimate)
	}

	est := api.Group("/estimation")
	{
		est.POST("/process", r.middleware.RateLimit(), r.handler.ProcessQueuedJobs)
		est.GET("/jobs", r.handler.ListJobs)
	}
	return h
}
