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
	"sort"
	"sync"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

// MemoryJobStore 内存实现（测试与 type=memory）
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*AIJob
}

// NewMemoryJobStore 创建内存作业存储
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*AIJob)}
}

func (s *MemoryJobStore) Put(ctx context.Context, job *AIJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneJob(job)
	s.jobs[job.ID] = c
	return nil
}

func (s *MemoryJobStore) Get(ctx context.Context, id string) (*AIJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "ai job %s", id)
	}
	return cloneJob(j), nil
}

func (s *MemoryJobStore) List(ctx context.Context) ([]*AIJob, error) {
	return s.filter(func(*AIJob) bool { return true }), nil
}

func (s *MemoryJobStore) ListByStatus(ctx context.Context, status JobStatus) ([]*AIJob, error) {
	return s.filter(func(j *AIJob) bool { return j.Status == status }), nil
}

func (s *MemoryJobStore) filter(keep func(*AIJob) bool) []*AIJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AIJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		if keep(j) {
			out = append(out, cloneJob(j))
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

func (s *MemoryJobStore) Close() error { return nil }

func cloneJob(j *AIJob) *AIJob {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
