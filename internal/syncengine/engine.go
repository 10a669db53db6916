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

// Package syncengine 离线持久同步队列的调度：单飞 drain、顺序上传登记、指数退避与重试上限
package syncengine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bosmith517/scopekit/internal/queue"
	"github.com/bosmith517/scopekit/internal/remote"
	"github.com/bosmith517/scopekit/internal/storage/blob"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
	"github.com/bosmith517/scopekit/pkg/log"
	"github.com/bosmith517/scopekit/pkg/metrics"
	"github.com/bosmith517/scopekit/pkg/utils"
)

// Uploader 远端对象存储
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Registrar 远端媒体登记
type Registrar interface {
	RegisterMedia(ctx context.Context, m remote.MediaRegistration) (string, error)
}

// Remote 同步媒体所需的远端能力
type Remote interface {
	Uploader
	Registrar
}

// JobProcessor 处理 ai_job 队列项（由估算客户端实现）；引擎只依赖该接口
type JobProcessor interface {
	ProcessJob(ctx context.Context, visitID, jobID string) error
}

// Connectivity 设备级在线状态
type Connectivity interface {
	Online() bool
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Config 引擎配置
type Config struct {
	MaxAttempts   int           // 队列项重试上限，<=0 默认 5
	Backoff       Backoff       // 零值使用 DefaultBackoff
	AutoDrain     time.Duration // 周期 drain 间隔，<=0 默认 5s
	UploadTimeout time.Duration // 单次上传/登记超时，<=0 默认 30s
}

func (c *Config) normalize() {
	c.MaxAttempts = utils.Positive(c.MaxAttempts, 5)
	if c.Backoff.Base <= 0 || c.Backoff.Max <= 0 {
		jitter := c.Backoff.Jitter
		c.Backoff = DefaultBackoff()
		c.Backoff.Jitter = jitter
	}
	c.AutoDrain = utils.PositiveDuration(c.AutoDrain, 5*time.Second)
	c.UploadTimeout = utils.PositiveDuration(c.UploadTimeout, 30*time.Second)
}

// Option 引擎可选项
type Option func(*Engine)

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.logger = log.OrDefault(l) } }

// WithJobProcessor 设置 ai_job 处理器
func WithJobProcessor(p JobProcessor) Option { return func(e *Engine) { e.jobs = p } }

// WithClock 替换时间源
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithSleep 替换退避等待（测试用）
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithIDGenerator 替换队列项 id 生成
func WithIDGenerator(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

// Engine 同步引擎。队列与 blob 的删除只由引擎执行；采集方只追加。
type Engine struct {
	queue  queue.Store
	blobs  blob.Store
	remote Remote
	conn   Connectivity
	cfg    Config
	logger *log.Logger

	jobsMu sync.RWMutex
	jobs   JobProcessor

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	draining atomic.Bool
	trigger  chan struct{}

	mu        sync.Mutex
	progress  map[string]int
	lastDrain *DrainReport
	leftover  map[string]struct{} // 队列项已删、blob 删除失败的 id，下轮 drain 重试

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New 创建引擎
func New(q queue.Store, b blob.Store, r Remote, conn Connectivity, cfg Config, opts ...Option) *Engine {
	cfg.normalize()
	e := &Engine{
		queue:    q,
		blobs:    b,
		remote:   r,
		conn:     conn,
		cfg:      cfg,
		logger:   log.OrDefault(nil),
		now:      time.Now,
		sleep:    sleepCtx,
		newID:    func() string { return uuid.New().String() },
		trigger:  make(chan struct{}, 1),
		progress: make(map[string]int),
		leftover: make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetJobProcessor 在估算客户端构造后注入（估算客户端依赖引擎入队）
func (e *Engine) SetJobProcessor(p JobProcessor) {
	e.jobsMu.Lock()
	e.jobs = p
	e.jobsMu.Unlock()
}

func (e *Engine) jobProcessor() JobProcessor {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	return e.jobs
}

// MediaCapture 一次采集产生的媒体
type MediaCapture struct {
	VisitID    string
	Kind       queue.Kind // photo | audio
	Path       string
	Sequence   int
	DurationMs int64
	Data       []byte
}

// EnqueueMedia 先写 blob 再写队列元数据；两者都落盘后才返回
func (e *Engine) EnqueueMedia(ctx context.Context, c MediaCapture) (*queue.Item, error) {
	var payload queue.Payload
	size := int64(len(c.Data))
	switch c.Kind {
	case queue.KindPhoto:
		payload = queue.Photo{Path: c.Path, Sequence: c.Sequence, SizeBytes: size}
	case queue.KindAudio:
		payload = queue.Audio{Path: c.Path, Sequence: c.Sequence, SizeBytes: size, DurationMs: c.DurationMs}
	default:
		return nil, pkgerrors.Wrapf(pkgerrors.ErrInvalidArg, "不支持的媒体类型 %q", c.Kind)
	}
	item := &queue.Item{
		ID:        e.newID(),
		VisitID:   c.VisitID,
		CreatedAt: e.now().UTC(),
		Payload:   payload,
	}
	if err := item.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, err.Error())
	}
	if err := e.blobs.Put(ctx, item.ID, c.Data); err != nil {
		return nil, fmt.Errorf("写入 blob 失败: %w", err)
	}
	if err := e.queue.Put(ctx, item); err != nil {
		if rmErr := e.blobs.Remove(ctx, item.ID); rmErr != nil {
			e.logger.Warn("回滚孤立 blob 失败", "item_id", item.ID, "error", rmErr)
		}
		return nil, fmt.Errorf("写入队列失败: %w", err)
	}
	e.logger.Info("媒体已入队", "item_id", item.ID, "visit_id", item.VisitID, "kind", c.Kind, "path", c.Path, "size", size)
	e.refreshQueueLength(ctx)
	e.TriggerDrain()
	return item, nil
}

// EnqueueAIJob 追加 ai_job 队列项，返回队列项 id
func (e *Engine) EnqueueAIJob(ctx context.Context, visitID, jobID, jobType string) (string, error) {
	item := &queue.Item{
		ID:        e.newID(),
		VisitID:   visitID,
		CreatedAt: e.now().UTC(),
		Payload:   queue.AIJob{JobID: jobID, JobType: jobType},
	}
	if err := e.queue.Put(ctx, item); err != nil {
		return "", fmt.Errorf("写入 ai_job 队列项失败: %w", err)
	}
	e.logger.Info("ai_job 已入队", "item_id", item.ID, "visit_id", visitID, "job_id", jobID)
	e.refreshQueueLength(ctx)
	return item.ID, nil
}

// TriggerDrain 请求一次 drain；离线或已有 drain 在执行时丢弃请求并返回 false
func (e *Engine) TriggerDrain() bool {
	if !e.conn.Online() || e.draining.Load() {
		return false
	}
	select {
	case e.trigger <- struct{}{}:
	default:
	}
	return true
}

// Start 启动后台循环：连通性恢复、周期定时器、手动请求三者都会触发 drain
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		if _, err := e.PruneOrphanBlobs(ctx); err != nil {
			e.logger.Warn("清理残留 blob 失败", "error", err)
		}
		e.refreshQueueLength(ctx)
		unsubscribe := e.conn.Subscribe(func(online bool) {
			if online {
				e.TriggerDrain()
			}
		})
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer unsubscribe()
			e.loop(ctx)
		}()
	})
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.AutoDrain)
	defer ticker.Stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			if n, err := e.queue.Len(runCtx); err != nil || n == 0 {
				continue
			}
			e.runOnce(runCtx)
		case <-e.trigger:
			e.runOnce(runCtx)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context) {
	if _, err := e.Drain(ctx); err != nil {
		e.logger.Error("drain 失败", "error", err)
	}
	// drain 期间到达的请求按单飞规则丢弃
	select {
	case <-e.trigger:
	default:
	}
}

// Stop 停止后台循环并等待当前 drain 退出（退避等待会被打断）
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) refreshQueueLength(ctx context.Context) {
	if n, err := e.queue.Len(ctx); err == nil {
		metrics.QueueLength.Set(float64(n))
	}
}

func (e *Engine) setProgress(id string, pct int) {
	e.mu.Lock()
	if pct < 0 {
		delete(e.progress, id)
	} else {
		e.progress[id] = pct
	}
	e.mu.Unlock()
}
