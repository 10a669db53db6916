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

package estimation

import (
	"context"
	"time"

	"github.com/bosmith517/scopekit/pkg/metrics"
)

type poller struct {
	jobID  string
	cancel context.CancelFunc
}

// startPolling 每个 visit 只保留一个轮询；重复触发时取消旧的
func (c *Client) startPolling(visitID, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if old, ok := c.pollers[visitID]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{jobID: jobID, cancel: cancel}
	c.pollers[visitID] = p

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			if c.pollers[visitID] == p {
				delete(c.pollers, visitID)
			}
			c.mu.Unlock()
			cancel()
		}()
		c.poll(ctx, visitID, jobID)
	}()
}

// Polling 正在轮询的 visit 数
func (c *Client) Polling() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pollers)
}

func (c *Client) poll(ctx context.Context, visitID, jobID string) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			metrics.EstimationPollTotal.WithLabelValues("cancelled").Inc()
			return
		case <-ticker.C:
		}

		st, found, err := c.remote.GetJobStatus(ctx, visitID)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("查询估算状态失败", "visit_id", visitID, "attempt", attempt, "error", err)
			continue
		}
		if !found {
			continue
		}
		switch JobStatus(st.Status) {
		case StatusCompleted:
			c.logger.Info("估算已完成", "visit_id", visitID)
			est, ferr := c.FetchEstimate(ctx, visitID)
			if ferr != nil {
				c.logger.Error("获取估算结果失败", "visit_id", visitID, "error", ferr)
			}
			c.finishJob(ctx, jobID, StatusCompleted, "")
			metrics.EstimationPollTotal.WithLabelValues("completed").Inc()
			if ferr == nil {
				c.notifier.DraftReady(ctx, visitID, est)
			}
			return
		case StatusFailed:
			c.logger.Warn("远端估算失败", "visit_id", visitID, "error", st.Error)
			c.finishJob(ctx, jobID, StatusFailed, st.Error)
			metrics.EstimationPollTotal.WithLabelValues("failed").Inc()
			return
		}
	}
	// 超时后静默停止，由调用方稍后通过状态查询确认
	c.logger.Info("估算轮询超时", "visit_id", visitID, "attempts", c.cfg.PollAttempts)
	metrics.EstimationPollTotal.WithLabelValues("timeout").Inc()
}

func (c *Client) finishJob(ctx context.Context, jobID string, status JobStatus, reason string) {
	c.jobMu.Lock()
	defer c.jobMu.Unlock()
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return
	}
	now := c.now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if status == StatusCompleted {
		job.CompletedAt = &now
		job.Error = ""
	} else if reason != "" {
		job.Error = reason
	}
	if err := c.jobs.Put(ctx, job); err != nil {
		c.logger.Error("更新 ai job 失败", "job_id", jobID, "error", err)
		return
	}
	metrics.EstimationJobsTotal.WithLabelValues(string(status)).Inc()
}
