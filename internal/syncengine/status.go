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
	"fmt"
	"time"

	"github.com/bosmith517/scopekit/internal/queue"
	"github.com/bosmith517/scopekit/internal/storage/blob"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

// 队列项的展示状态
const (
	StatePending        = "pending"
	StateUploading      = "uploading"
	StateStalled        = "stalled"
	StateOrphaned       = "orphaned"
	StateCleanupPending = "cleanup_pending"
)

// ItemView 队列项的只读视图
type ItemView struct {
	ID           string     `json:"id"`
	VisitID      string     `json:"visit_id"`
	Kind         queue.Kind `json:"kind"`
	Path         string     `json:"path,omitempty"`
	JobID        string     `json:"job_id,omitempty"`
	Attempts     int        `json:"attempts"`
	State        string     `json:"state"`
	Progress     int        `json:"progress,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	OrphanedAt   *time.Time `json:"orphaned_at,omitempty"`
}

// Status 同步状态快照
type Status struct {
	Online         bool           `json:"online"`
	Syncing        bool           `json:"syncing"`
	QueueLength    int            `json:"queue_length"`
	Pending        int            `json:"pending"`
	Stalled        int            `json:"stalled"`
	Orphaned       int            `json:"orphaned"`
	CleanupPending int            `json:"cleanup_pending"`
	Progress       map[string]int `json:"progress,omitempty"`
	LastDrain      *DrainReport   `json:"last_drain,omitempty"`
}

// Syncing 是否有 drain 正在执行
func (e *Engine) Syncing() bool { return e.draining.Load() }

// Progress 当前上传进度（0-100），按队列项 id
func (e *Engine) Progress() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.progress))
	for k, v := range e.progress {
		out[k] = v
	}
	return out
}

// LastDrain 最近一次完成的 drain
func (e *Engine) LastDrain() *DrainReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastDrain == nil {
		return nil
	}
	r := *e.lastDrain
	return &r
}

// Items 按同步顺序列出队列项
func (e *Engine) Items(ctx context.Context) ([]ItemView, error) {
	items, err := e.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	progress := e.Progress()
	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		views = append(views, e.view(it, progress))
	}
	return views, nil
}

func (e *Engine) view(it *queue.Item, progress map[string]int) ItemView {
	v := ItemView{
		ID:           it.ID,
		VisitID:      it.VisitID,
		Kind:         it.Kind(),
		Attempts:     it.Attempts,
		LastError:    it.LastError,
		CreatedAt:    it.CreatedAt,
		RegisteredAt: it.RegisteredAt,
		OrphanedAt:   it.OrphanedAt,
	}
	if m, ok := it.Media(); ok {
		v.Path = m.Path
	}
	if j, ok := it.Payload.(queue.AIJob); ok {
		v.JobID = j.JobID
	}
	pct, uploading := progress[it.ID]
	switch {
	case it.Attempts >= e.cfg.MaxAttempts:
		v.State = StateStalled
	case it.RegisteredAt != nil:
		v.State = StateCleanupPending
	case it.OrphanedAt != nil:
		v.State = StateOrphaned
	case uploading:
		v.State = StateUploading
		v.Progress = pct
	default:
		v.State = StatePending
	}
	return v
}

// Status 汇总队列状态
func (e *Engine) Status(ctx context.Context) (Status, error) {
	views, err := e.Items(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Online:      e.conn.Online(),
		Syncing:     e.Syncing(),
		QueueLength: len(views),
		Progress:    e.Progress(),
		LastDrain:   e.LastDrain(),
	}
	for _, v := range views {
		switch v.State {
		case StateStalled:
			st.Stalled++
		case StateOrphaned:
			st.Orphaned++
		case StateCleanupPending:
			st.CleanupPending++
		default:
			st.Pending++
		}
	}
	return st, nil
}

// Orphans 缺少 blob 的队列项
func (e *Engine) Orphans(ctx context.Context) ([]ItemView, error) {
	views, err := e.Items(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0)
	for _, v := range views {
		if v.OrphanedAt != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

// ClearQueue 删除全部队列项及其 blob；drain 执行中返回 ErrAlreadyRunning
func (e *Engine) ClearQueue(ctx context.Context) (int, error) {
	if !e.draining.CompareAndSwap(false, true) {
		return 0, pkgerrors.ErrAlreadyRunning
	}
	defer e.draining.Store(false)

	items, err := e.queue.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if err := e.blobs.Remove(ctx, it.ID); err != nil {
			return n, fmt.Errorf("删除 blob %s 失败: %w", it.ID, err)
		}
		if err := e.queue.Remove(ctx, it.ID); err != nil {
			return n, fmt.Errorf("删除队列项 %s 失败: %w", it.ID, err)
		}
		n++
	}
	e.mu.Lock()
	e.progress = make(map[string]int)
	e.mu.Unlock()
	e.refreshQueueLength(ctx)
	e.logger.Warn("同步队列已清空", "removed", n)
	return n, nil
}

// Discard 丢弃单个队列项（通常是孤儿或已达上限的项）
func (e *Engine) Discard(ctx context.Context, id string) error {
	if !e.draining.CompareAndSwap(false, true) {
		return pkgerrors.ErrAlreadyRunning
	}
	defer e.draining.Store(false)

	if _, err := e.queue.Get(ctx, id); err != nil {
		return err
	}
	if err := e.queue.Remove(ctx, id); err != nil {
		return fmt.Errorf("删除队列项失败: %w", err)
	}
	if err := e.blobs.Remove(ctx, id); err != nil {
		e.logger.Warn("删除 blob 失败，下轮重试", "item_id", id, "error", err)
		e.markLeftover(id)
	}
	e.setProgress(id, -1)
	e.refreshQueueLength(ctx)
	e.logger.Warn("队列项已丢弃", "item_id", id)
	return nil
}

// PruneOrphanBlobs 删除没有对应队列项的 blob（入队中途崩溃的残留）
func (e *Engine) PruneOrphanBlobs(ctx context.Context) ([]string, error) {
	items, err := e.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]struct{}, len(items))
	for _, it := range items {
		live[it.ID] = struct{}{}
	}
	removed, err := blob.Prune(ctx, e.blobs, func(id string) bool {
		_, ok := live[id]
		return ok
	})
	if len(removed) > 0 {
		e.logger.Info("已清理残留 blob", "count", len(removed))
	}
	return removed, err
}
