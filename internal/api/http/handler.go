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
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/bosmith517/scopekit/internal/estimation"
	"github.com/bosmith517/scopekit/internal/remote"
	"github.com/bosmith517/scopekit/internal/syncengine"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
	"github.com/bosmith517/scopekit/pkg/metrics"
)

// SyncService 同步引擎对外能力
type SyncService interface {
	Status(ctx context.Context) (syncengine.Status, error)
	Items(ctx context.Context) ([]syncengine.ItemView, error)
	Orphans(ctx context.Context) ([]syncengine.ItemView, error)
	Drain(ctx context.Context) (syncengine.DrainReport, error)
	TriggerDrain() bool
	ClearQueue(ctx context.Context) (int, error)
	Discard(ctx context.Context, id string) error
}

// EstimationService 估算客户端对外能力
type EstimationService interface {
	Trigger(ctx context.Context, visitID string) (*estimation.AIJob, error)
	ProcessQueuedJobs(ctx context.Context) (int, error)
	Jobs(ctx context.Context) ([]*estimation.AIJob, error)
	LocalEstimate(ctx context.Context, visitID string) (*remote.Estimate, error)
	FetchEstimate(ctx context.Context, visitID string) (*remote.Estimate, error)
}

// VisitService 远端 visit 生命周期
type VisitService interface {
	CreateVisit(ctx context.Context, v remote.NewVisit) (string, error)
	FinalizeVisit(ctx context.Context, visitID string, at time.Time) error
	GetVisitStatus(ctx context.Context, visitID string) (*remote.VisitStatus, error)
}

// Handler HTTP 处理器
type Handler struct {
	sync       SyncService
	estimation EstimationService
	visits     VisitService
	online     func() bool
}

// NewHandler 创建 HTTP 处理器；visits 可为 nil（不暴露 visit 路由的行为）
func NewHandler(sync SyncService, est EstimationService, visits VisitService, online func() bool) *Handler {
	if online == nil {
		online = func() bool { return true }
	}
	return &Handler{sync: sync, estimation: est, visits: visits, online: online}
}

func writeError(c context.Context, ctx *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, pkgerrors.ErrInvalidArg):
		status = consts.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrAlreadyRunning):
		status = consts.StatusConflict
	case errors.Is(err, pkgerrors.ErrOffline), errors.Is(err, pkgerrors.ErrUnreachable):
		status = consts.StatusServiceUnavailable
	}
	if status == consts.StatusInternalServerError {
		hlog.CtxErrorf(c, "%s %s failed: %v", ctx.Method(), ctx.Path(), err)
	}
	ctx.JSON(status, map[string]string{"error": err.Error()})
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "scopekit-syncd",
		"online":    h.online(),
	})
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// SyncStatus 队列状态
// GET /api/sync/status
func (h *Handler) SyncStatus(c context.Context, ctx *app.RequestContext) {
	st, err := h.sync.Status(c)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, st)
}

// SyncItems 队列项明细
// GET /api/sync/items
func (h *Handler) SyncItems(c context.Context, ctx *app.RequestContext) {
	items, err := h.sync.Items(c)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}

// SyncOrphans 缺少 blob 的队列项
// GET /api/sync/orphans
func (h *Handler) SyncOrphans(c context.Context, ctx *app.RequestContext) {
	items, err := h.sync.Orphans(c)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"orphans": items, "total": len(items)})
}

// SyncDrain 请求 drain；?wait=true 时同步执行并返回报告
// POST /api/sync/drain
func (h *Handler) SyncDrain(c context.Context, ctx *app.RequestContext) {
	if string(ctx.Query("wait")) == "true" {
		report, err := h.sync.Drain(c)
		if err != nil {
			writeError(c, ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, report)
		return
	}
	accepted := h.sync.TriggerDrain()
	ctx.JSON(consts.StatusAccepted, map[string]bool{"accepted": accepted})
}

// SyncClear 清空队列（人工干预）
// POST /api/sync/clear
func (h *Handler) SyncClear(c context.Context, ctx *app.RequestContext) {
	n, err := h.sync.ClearQueue(c)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]int{"removed": n})
}

// DiscardItem 丢弃单个队列项
// DELETE /api/sync/items/:id
func (h *Handler) DiscardItem(c context.Context, ctx *app.RequestContext) {
	id := ctx.Param("id")
	if err := h.sync.Discard(c, id); err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]string{"discarded": id})
}

type createVisitRequest struct {
	TenantID      string `json:"tenant_id"`
	EvidencePack  string `json:"evidence_pack"`
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Address       string `json:"address"`
}

// CreateVisit 创建 visit
// POST /api/visits
func (h *Handler) CreateVisit(c context.Context, ctx *app.RequestContext) {
	var req createVisitRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TenantID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
		return
	}
	id, err := h.visits.CreateVisit(c, remote.NewVisit{
		TenantID:      req.TenantID,
		EvidencePack:  req.EvidencePack,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Address:       req.Address,
	})
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusCreated, map[string]string{"visit_id": id})
}

// FinalizeVisit 结束 visit 并触发估算
// POST /api/visits/:id/finalize
func (h *Handler) FinalizeVisit(c context.Context, ctx *app.RequestContext) {
	visitID := ctx.Param("id")
	if err := h.visits.FinalizeVisit(c, visitID, time.Now().UTC()); err != nil {
		writeError(c, ctx, err)
		return
	}
	job, err := h.estimation.Trigger(c, visitID)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusAccepted, map[string]interface{}{"visit_id": visitID, "job": job})
}

// VisitStatus 远端 visit 状态
// GET /api/visits/:id/status
func (h *Handler) VisitStatus(c context.Context, ctx *app.RequestContext) {
	st, err := h.visits.GetVisitStatus(c, ctx.Param("id"))
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, st)
}

// TriggerEstimation 触发估算（离线时排队）
// POST /api/visits/:id/estimation
func (h *Handler) TriggerEstimation(c context.Context, ctx *app.RequestContext) {
	job, err := h.estimation.Trigger(c, ctx.Param("id"))
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusAccepted, job)
}

// GetEstimate 优先读本地缓存，缺失时向远端拉取
// GET /api/visits/:id/estimate
func (h *Handler) GetEstimate(c context.Context, ctx *app.RequestContext) {
	visitID := ctx.Param("id")
	est, err := h.estimation.LocalEstimate(c, visitID)
	if errors.Is(err, pkgerrors.ErrNotFound) && h.online() {
		est, err = h.estimation.FetchEstimate(c, visitID)
	}
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"estimate":          est,
		"confidence":        estimation.ConfidenceScore(est),
		"evidence_coverage": estimation.EvidenceCoverage(est),
	})
}

// ProcessQueuedJobs 重试所有 queued 估算作业
// POST /api/estimation/process
func (h *Handler) ProcessQueuedJobs(c context.Context, ctx *app.RequestContext) {
	n, err := h.estimation.ProcessQueuedJobs(c)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]int{"started": n})
}

// ListJobs 本地估算作业
// GET /api/estimation/jobs
func (h *Handler) ListJobs(c context.Context, ctx *app.RequestContext) {
	jobs, err := h.estimation.Jobs(c)
	if err != nil {
		writeError(c, ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{"jobs": jobs, "total": len(jobs)})
}
