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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosmith517/scopekit/internal/queue"
	"github.com/bosmith517/scopekit/internal/remote"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
	"github.com/bosmith517/scopekit/pkg/metrics"
	"github.com/bosmith517/scopekit/pkg/tracing"
)

// 跳过原因
const (
	SkipOffline  = "offline"
	SkipInFlight = "in_flight"
)

// DrainReport 一次 drain 的结果汇总
type DrainReport struct {
	Skipped    string        `json:"skipped,omitempty"`
	Visited    int           `json:"visited"`
	Synced     int           `json:"synced"`
	Failed     int           `json:"failed"`
	Stalled    int           `json:"stalled"`
	Orphaned   int           `json:"orphaned"`
	CleanupErr int           `json:"cleanup_errors"`
	Cancelled  bool          `json:"cancelled,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeFailed
	outcomeStalled
	outcomeOrphaned
	outcomeCleanupPending
	outcomeCancelled
)

// Drain 执行一次 drain：按 List 顺序逐项处理，单飞。
// 离线或已有 drain 在执行时立即返回（Skipped 非空），不是错误。
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	report := DrainReport{StartedAt: e.now()}
	if !e.conn.Online() {
		report.Skipped = SkipOffline
		metrics.DrainTotal.WithLabelValues("skipped_offline").Inc()
		return report, nil
	}
	if !e.draining.CompareAndSwap(false, true) {
		report.Skipped = SkipInFlight
		metrics.DrainTotal.WithLabelValues("skipped_inflight").Inc()
		return report, nil
	}
	metrics.BoolGauge(metrics.Syncing, true)
	defer func() {
		e.draining.Store(false)
		metrics.BoolGauge(metrics.Syncing, false)
	}()

	e.removeLeftoverBlobs(ctx)

	items, err := e.queue.List(ctx)
	if err != nil {
		return report, fmt.Errorf("读取队列失败: %w", err)
	}
	ctx, span := tracing.StartDrainSpan(ctx, len(items))
	defer span.End()

	e.logger.Info("开始处理同步队列", "items", len(items))
	for _, it := range items {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		if !e.conn.Online() {
			// 连通性是门控条件：本轮提前结束，不计失败
			e.logger.Info("网络断开，提前结束本轮 drain")
			break
		}
		report.Visited++
		switch e.processItem(ctx, it) {
		case outcomeSynced:
			report.Synced++
		case outcomeFailed:
			report.Failed++
		case outcomeStalled:
			report.Stalled++
		case outcomeOrphaned:
			report.Orphaned++
		case outcomeCleanupPending:
			report.CleanupErr++
		case outcomeCancelled:
			report.Cancelled = true
		}
		if report.Cancelled {
			break
		}
	}

	report.Duration = time.Since(report.StartedAt)
	outcomeLabel := "completed"
	if report.Cancelled {
		outcomeLabel = "cancelled"
	}
	metrics.DrainTotal.WithLabelValues(outcomeLabel).Inc()
	metrics.DrainDuration.Observe(report.Duration.Seconds())
	e.refreshQueueLength(context.WithoutCancel(ctx))

	e.mu.Lock()
	r := report
	e.lastDrain = &r
	e.mu.Unlock()

	e.logger.Info("同步队列处理完成",
		"visited", report.Visited, "synced", report.Synced, "failed", report.Failed,
		"stalled", report.Stalled, "orphaned", report.Orphaned, "cleanup_errors", report.CleanupErr)
	return report, nil
}

func (e *Engine) processItem(ctx context.Context, it *queue.Item) outcome {
	kind := string(it.Kind())
	if it.Attempts >= e.cfg.MaxAttempts {
		e.logger.Warn("已达重试上限，跳过", "item_id", it.ID, "attempts", it.Attempts)
		metrics.ItemsTotal.WithLabelValues(kind, "stalled").Inc()
		return outcomeStalled
	}

	ctx, span := tracing.StartItemSpan(ctx, it.ID, kind, it.Attempts)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if it.RegisteredAt != nil {
		return e.cleanup(ctx, it)
	}

	switch p := it.Payload.(type) {
	case queue.AIJob:
		err = e.processAIJob(ctx, it, p)
		if err == nil {
			return e.cleanup(ctx, it)
		}
	default:
		media, _ := it.Media()
		err = e.processMedia(ctx, it, media)
		if errors.Is(err, pkgerrors.ErrBlobMissing) {
			return e.markOrphaned(ctx, it, err)
		}
		if err == nil {
			now := e.now().UTC()
			it.RegisteredAt = &now
			it.LastError = ""
			if perr := e.queue.Put(ctx, it); perr != nil {
				e.logger.Warn("记录登记完成失败，继续清理", "item_id", it.ID, "error", perr)
			}
			return e.cleanup(ctx, it)
		}
	}

	if ctx.Err() != nil {
		return outcomeCancelled
	}
	return e.fail(ctx, it, err)
}

func (e *Engine) processMedia(ctx context.Context, it *queue.Item, m queue.Media) error {
	data, ok, err := e.blobs.Get(ctx, it.ID)
	if err != nil {
		return fmt.Errorf("读取 blob 失败: %w", err)
	}
	if !ok {
		return pkgerrors.Wrapf(pkgerrors.ErrBlobMissing, "item %s", it.ID)
	}
	if it.OrphanedAt != nil {
		// blob 已被恢复
		it.OrphanedAt = nil
	}

	e.setProgress(it.ID, 0)
	uctx, cancel := context.WithTimeout(ctx, e.cfg.UploadTimeout)
	_, err = e.remote.Upload(uctx, m.Path, data, contentType(m.Kind))
	cancel()
	if err != nil {
		e.setProgress(it.ID, -1)
		return fmt.Errorf("upload %s: %w", m.Path, err)
	}
	e.setProgress(it.ID, 50)

	size := m.SizeBytes
	if size == 0 {
		size = int64(len(data))
	}
	rctx, cancel := context.WithTimeout(ctx, e.cfg.UploadTimeout)
	mediaID, err := e.remote.RegisterMedia(rctx, remote.MediaRegistration{
		VisitID:    it.VisitID,
		Kind:       string(m.Kind),
		Path:       m.Path,
		SizeBytes:  size,
		DurationMs: m.DurationMs,
		Sequence:   m.Sequence,
	})
	cancel()
	if err != nil {
		e.setProgress(it.ID, -1)
		return fmt.Errorf("register %s: %w", m.Path, err)
	}
	e.setProgress(it.ID, 100)
	e.logger.Info("媒体已上传并登记", "item_id", it.ID, "media_id", mediaID, "path", m.Path)
	return nil
}

func (e *Engine) processAIJob(ctx context.Context, it *queue.Item, p queue.AIJob) error {
	proc := e.jobProcessor()
	if proc == nil {
		return fmt.Errorf("未配置 ai_job 处理器")
	}
	return proc.ProcessJob(ctx, it.VisitID, p.JobID)
}

// cleanup 远端已完成：先删队列项再删 blob。
// 队列项删除失败时 blob 保留，下轮仍可重试；blob 删除失败只留下无主 blob，
// 下轮 drain 开始时重试，进程重启后由 PruneOrphanBlobs 兜底。
func (e *Engine) cleanup(ctx context.Context, it *queue.Item) outcome {
	kind := string(it.Kind())
	if err := e.queue.Remove(ctx, it.ID); err != nil {
		e.logger.Warn("删除队列项失败，下轮重试", "item_id", it.ID, "error", err)
		metrics.ItemsTotal.WithLabelValues(kind, "cleanup_failed").Inc()
		return outcomeCleanupPending
	}
	if err := e.blobs.Remove(ctx, it.ID); err != nil {
		e.logger.Warn("删除 blob 失败，下轮重试", "item_id", it.ID, "error", err)
		metrics.ItemsTotal.WithLabelValues(kind, "blob_leftover").Inc()
		e.markLeftover(it.ID)
	}
	e.setProgress(it.ID, -1)
	metrics.ItemsTotal.WithLabelValues(kind, "synced").Inc()
	return outcomeSynced
}

// markOrphaned blob 缺失：记录诊断状态，不增加 attempts，不退避
func (e *Engine) markOrphaned(ctx context.Context, it *queue.Item, cause error) outcome {
	e.logger.Error("队列项缺少 blob，标记为孤儿", "item_id", it.ID, "visit_id", it.VisitID, "error", cause)
	metrics.ItemsTotal.WithLabelValues(string(it.Kind()), "orphaned").Inc()
	if it.OrphanedAt == nil {
		now := e.now().UTC()
		it.OrphanedAt = &now
		it.LastError = cause.Error()
		if err := e.queue.Put(ctx, it); err != nil {
			e.logger.Warn("记录孤儿状态失败", "item_id", it.ID, "error", err)
		}
	}
	return outcomeOrphaned
}

// fail 累加 attempts 并持久化，然后按失败前的 attempts 退避
func (e *Engine) fail(ctx context.Context, it *queue.Item, cause error) outcome {
	delay := e.cfg.Backoff.Delay(it.Attempts)
	it.Attempts++
	it.LastError = cause.Error()
	if err := e.queue.Put(ctx, it); err != nil {
		e.logger.Error("持久化 attempts 失败", "item_id", it.ID, "error", err)
	}
	metrics.ItemsTotal.WithLabelValues(string(it.Kind()), "failed").Inc()
	metrics.BackoffSeconds.Observe(delay.Seconds())
	e.logger.Warn("同步失败，退避后继续",
		"item_id", it.ID, "attempts", it.Attempts, "backoff", delay, "error", cause)
	if err := e.sleep(ctx, delay); err != nil {
		return outcomeCancelled
	}
	return outcomeFailed
}

func contentType(k queue.Kind) string {
	switch k {
	case queue.KindPhoto:
		return "image/jpeg"
	case queue.KindAudio:
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

func (e *Engine) markLeftover(id string) {
	e.mu.Lock()
	e.leftover[id] = struct{}{}
	e.mu.Unlock()
}

// removeLeftoverBlobs 重试删除上轮清理遗留的 blob
func (e *Engine) removeLeftoverBlobs(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.leftover))
	for id := range e.leftover {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	for _, id := range ids {
		if err := e.blobs.Remove(ctx, id); err != nil {
			e.logger.Warn("重试删除遗留 blob 失败", "item_id", id, "error", err)
			continue
		}
		e.mu.Lock()
		delete(e.leftover, id)
		e.mu.Unlock()
	}
}
