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

// Package estimation 触发远端 AI 估算：在线直接调用并轮询，离线或失败时落入本地作业表并由同步队列重试
package estimation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bosmith517/scopekit/internal/remote"
	"github.com/bosmith517/scopekit/internal/storage/cache"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
	"github.com/bosmith517/scopekit/pkg/log"
	"github.com/bosmith517/scopekit/pkg/metrics"
	"github.com/bosmith517/scopekit/pkg/tracing"
	"github.com/bosmith517/scopekit/pkg/utils"
)

// Remote 估算所需的远端能力
type Remote interface {
	Ping(ctx context.Context) error
	TriggerEstimation(ctx context.Context, visitID string) (remote.TriggerResult, error)
	GetJobStatus(ctx context.Context, visitID string) (remote.JobStatus, bool, error)
	GetEstimate(ctx context.Context, visitID string) (*remote.Estimate, error)
}

// Enqueuer 把 ai_job 追加到同步队列（由同步引擎实现）
type Enqueuer interface {
	EnqueueAIJob(ctx context.Context, visitID, jobID, jobType string) (string, error)
}

// Connectivity 设备级在线状态
type Connectivity interface {
	Online() bool
}

// Notifier 估算草稿就绪通知
type Notifier interface {
	DraftReady(ctx context.Context, visitID string, est *remote.Estimate)
}

// LogNotifier 只记录日志的默认通知
type LogNotifier struct {
	Logger *log.Logger
}

// DraftReady 实现 Notifier
func (n LogNotifier) DraftReady(ctx context.Context, visitID string, est *remote.Estimate) {
	l := log.OrDefault(n.Logger)
	if est == nil {
		l.Info("估算草稿已就绪", "visit_id", visitID)
		return
	}
	l.Info("估算草稿已就绪", "visit_id", visitID, "estimate_id", est.ID, "total", est.TotalAmount, "lines", len(est.Lines))
}

// Config 估算客户端配置
type Config struct {
	PollInterval time.Duration // 默认 1s
	PollAttempts int           // 默认 60
	MaxAttempts  int           // AIJob 重试上限，默认 3
	EstimateTTL  time.Duration // 估算缓存 TTL，<=0 不过期
	JobType      string        // 默认 estimate
}

func (c *Config) normalize() {
	c.PollInterval = utils.PositiveDuration(c.PollInterval, time.Second)
	c.PollAttempts = utils.Positive(c.PollAttempts, 60)
	c.MaxAttempts = utils.Positive(c.MaxAttempts, 3)
	c.JobType = utils.CoalesceString(c.JobType, "estimate")
}

// Option 客户端可选项
type Option func(*Client)

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option { return func(c *Client) { c.logger = log.OrDefault(l) } }

// WithNotifier 设置就绪通知
func WithNotifier(n Notifier) Option { return func(c *Client) { c.notifier = n } }

// WithClock 替换时间源
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client 估算触发客户端，实现 syncengine.JobProcessor
type Client struct {
	remote   Remote
	jobs     JobStore
	cache    cache.Store
	enqueuer Enqueuer
	conn     Connectivity
	notifier Notifier
	cfg      Config
	logger   *log.Logger
	now      func() time.Time

	// mu 保护 pollers 与 closed
	mu      sync.Mutex
	pollers map[string]*poller
	closed  bool
	wg      sync.WaitGroup

	// jobMu 串行化作业记录的读改写与重试触发
	jobMu sync.Mutex
}

// NewClient 创建客户端
func NewClient(r Remote, jobs JobStore, c cache.Store, enq Enqueuer, conn Connectivity, cfg Config, opts ...Option) *Client {
	cfg.normalize()
	cl := &Client{
		remote:   r,
		jobs:     jobs,
		cache:    c,
		enqueuer: enq,
		conn:     conn,
		cfg:      cfg,
		logger:   log.OrDefault(nil),
		now:      time.Now,
		pollers:  make(map[string]*poller),
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.notifier == nil {
		cl.notifier = LogNotifier{Logger: cl.logger}
	}
	return cl
}

// Trigger 触发 visit 的估算。远端可达时直接调用并开始轮询；
// 不可达或调用失败时记录 queued 作业并追加 ai_job 队列项。
func (c *Client) Trigger(ctx context.Context, visitID string) (*AIJob, error) {
	if visitID == "" {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidArg, "visit id 不能为空")
	}
	ctx, span := tracing.StartEstimationSpan(ctx, "trigger", visitID)
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	c.logger.Info("触发 AI 估算", "visit_id", visitID)
	if reachErr := c.reachable(ctx); reachErr != nil {
		if pkgerrors.IsGating(reachErr) {
			c.logger.Info("设备离线，估算转入离线队列", "visit_id", visitID)
		} else {
			c.logger.Info("远端不可达，估算转入离线队列", "visit_id", visitID, "reason", reachErr)
		}
		return c.queueOffline(ctx, visitID)
	}

	if _, terr := c.remote.TriggerEstimation(ctx, visitID); terr != nil {
		c.logger.Warn("触发估算失败，转入离线队列", "visit_id", visitID, "error", terr)
		return c.queueOffline(ctx, visitID)
	}

	now := c.now().UTC()
	job := &AIJob{
		ID:        uuid.New().String(),
		VisitID:   visitID,
		JobType:   c.cfg.JobType,
		Status:    StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = c.jobs.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("记录 ai job 失败: %w", err)
	}
	metrics.EstimationJobsTotal.WithLabelValues(string(StatusProcessing)).Inc()
	c.startPolling(visitID, job.ID)
	return job, nil
}

func (c *Client) reachable(ctx context.Context) error {
	if c.conn != nil && !c.conn.Online() {
		return pkgerrors.ErrOffline
	}
	return c.remote.Ping(ctx)
}

func (c *Client) queueOffline(ctx context.Context, visitID string) (*AIJob, error) {
	now := c.now().UTC()
	job := &AIJob{
		ID:        uuid.New().String(),
		VisitID:   visitID,
		JobType:   c.cfg.JobType,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.jobs.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("记录离线 ai job 失败: %w", err)
	}
	if c.enqueuer != nil {
		itemID, err := c.enqueuer.EnqueueAIJob(ctx, visitID, job.ID, job.JobType)
		if err != nil {
			return job, fmt.Errorf("ai job 入队失败: %w", err)
		}
		c.logger.Info("ai job 已进入离线队列", "job_id", job.ID, "item_id", itemID)
	}
	metrics.EstimationJobsTotal.WithLabelValues(string(StatusQueued)).Inc()
	return job, nil
}

// ProcessQueuedJobs 重新触发所有 queued 作业；成功转 processing 并轮询，失败累计 attempts，达到上限标记 failed
func (c *Client) ProcessQueuedJobs(ctx context.Context) (int, error) {
	jobs, err := c.jobs.ListByStatus(ctx, StatusQueued)
	if err != nil {
		return 0, err
	}
	c.logger.Info("处理离线估算作业", "count", len(jobs))
	started := 0
	for _, j := range jobs {
		if ctx.Err() != nil {
			return started, ctx.Err()
		}
		if err := c.ProcessJob(ctx, j.VisitID, j.ID); err == nil {
			started++
		}
	}
	return started, nil
}

// ProcessJob 处理单个作业（同步队列中的 ai_job 项经此执行）。
// processing 与 completed 的作业直接成功返回，避免重复触发；同一时刻只处理一个作业。
//
// failed 只表示作业自身的 MaxAttempts 已用完，并非终态：只要对应的 ai_job 队列项仍在
// （同步引擎上限更高），引擎下一轮仍会调用 ProcessJob，触发成功时作业会从 failed 回到 processing。
// 作业真正停止重试取决于队列项达到引擎上限或被人工 Discard。
func (c *Client) ProcessJob(ctx context.Context, visitID, jobID string) (err error) {
	ctx, span := tracing.StartEstimationSpan(ctx, "process_job", visitID)
	defer func() { tracing.EndSpan(span, err) }()

	c.jobMu.Lock()
	defer c.jobMu.Unlock()

	job, err := c.jobs.Get(ctx, jobID)
	switch {
	case errors.Is(err, pkgerrors.ErrNotFound):
		// 作业记录丢失时仍按 visit 触发
		now := c.now().UTC()
		job = &AIJob{ID: jobID, VisitID: visitID, JobType: c.cfg.JobType, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
	case err != nil:
		return err
	}
	if job.Status == StatusProcessing || job.Status == StatusCompleted {
		return nil
	}

	_, terr := c.remote.TriggerEstimation(ctx, job.VisitID)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	job.Attempts++
	job.UpdatedAt = c.now().UTC()
	if terr == nil {
		job.Status = StatusProcessing
		job.Error = ""
	} else {
		job.Error = terr.Error()
		if job.Attempts >= c.cfg.MaxAttempts {
			job.Status = StatusFailed
		}
	}
	if perr := c.jobs.Put(ctx, job); perr != nil {
		c.logger.Error("更新 ai job 失败", "job_id", job.ID, "error", perr)
	}

	if terr != nil {
		c.logger.Warn("重试估算失败", "job_id", job.ID, "visit_id", job.VisitID, "attempts", job.Attempts, "status", job.Status, "error", terr)
		if job.Status == StatusFailed {
			metrics.EstimationJobsTotal.WithLabelValues(string(StatusFailed)).Inc()
			return fmt.Errorf("%w: job %s: %w", pkgerrors.ErrRetryCeiling, job.ID, terr)
		}
		metrics.EstimationJobsTotal.WithLabelValues("retry_failed").Inc()
		return terr
	}
	metrics.EstimationJobsTotal.WithLabelValues(string(StatusProcessing)).Inc()
	c.logger.Info("离线估算作业已触发", "job_id", job.ID, "visit_id", job.VisitID)
	c.startPolling(job.VisitID, job.ID)
	return nil
}

// Jobs 列出全部本地作业
func (c *Client) Jobs(ctx context.Context) ([]*AIJob, error) {
	return c.jobs.List(ctx)
}

// LocalEstimate 读取缓存的估算结果
func (c *Client) LocalEstimate(ctx context.Context, visitID string) (*remote.Estimate, error) {
	if c.cache == nil {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "estimate %s", visitID)
	}
	var est remote.Estimate
	if err := c.cache.Get(ctx, estimateKey(visitID), &est); err != nil {
		return nil, err
	}
	return &est, nil
}

func estimateKey(visitID string) string { return "estimate:" + visitID }

// FetchEstimate 拉取远端最新估算并写入缓存
func (c *Client) FetchEstimate(ctx context.Context, visitID string) (*remote.Estimate, error) {
	est, err := c.remote.GetEstimate(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, estimateKey(visitID), est, c.cfg.EstimateTTL); err != nil {
			c.logger.Warn("缓存估算失败", "visit_id", visitID, "error", err)
		}
	}
	return est, nil
}

// Close 取消所有轮询并等待退出
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	for visitID, p := range c.pollers {
		p.cancel()
		delete(c.pollers, visitID)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
