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
	"fmt"
	"time"

	"github.com/bosmith517/scopekit/pkg/config"
)

// JobStatus AIJob 状态
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// AIJob 一次估算触发的本地状态/审计记录；真正的重试由同步引擎驱动
type AIJob struct {
	ID          string     `json:"id"`
	VisitID     string     `json:"visit_id"`
	JobType     string     `json:"job_type"` // transcribe | estimate
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Terminal 本地记录是否处于 completed/failed。
// failed 在 ai_job 队列项仍存在时可被 ProcessJob 重新触发，见 Client.ProcessJob。
func (j *AIJob) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// JobStore 离线作业存储
type JobStore interface {
	Put(ctx context.Context, job *AIJob) error
	// Get 不存在时返回包装 ErrNotFound 的错误
	Get(ctx context.Context, id string) (*AIJob, error)
	// List 按创建时间升序
	List(ctx context.Context) ([]*AIJob, error)
	ListByStatus(ctx context.Context, status JobStatus) ([]*AIJob, error)
	Close() error
}

// NewJobStore 根据配置创建作业存储
func NewJobStore(ctx context.Context, cfg config.JobStoreConfig) (JobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryJobStore(), nil
	case "", "sqlite":
		return NewSQLiteJobStore(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("不支持的作业存储类型: %s", cfg.Type)
	}
}
