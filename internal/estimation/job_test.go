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
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosmith517/scopekit/pkg/config"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

func TestJobStore_Contract(t *testing.T) {
	ctx := context.Background()
	stores := map[string]func(t *testing.T) JobStore{
		"memory": func(t *testing.T) JobStore { return NewMemoryJobStore() },
		"sqlite": func(t *testing.T) JobStore {
			s, err := NewSQLiteJobStore(ctx, filepath.Join(t.TempDir(), "jobs.db"))
			require.NoError(t, err)
			return s
		},
	}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()

			_, err := s.Get(ctx, "missing")
			assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))

			require.NoError(t, s.Put(ctx, &AIJob{ID: "b", VisitID: "v2", JobType: "estimate", Status: StatusQueued, CreatedAt: base.Add(time.Minute), UpdatedAt: base}))
			require.NoError(t, s.Put(ctx, &AIJob{ID: "a", VisitID: "v1", JobType: "estimate", Status: StatusProcessing, CreatedAt: base, UpdatedAt: base}))

			all, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "a", all[0].ID)
			assert.Equal(t, "b", all[1].ID)

			queued, err := s.ListByStatus(ctx, StatusQueued)
			require.NoError(t, err)
			require.Len(t, queued, 1)
			assert.Equal(t, "b", queued[0].ID)

			done := base.Add(2 * time.Minute)
			j, err := s.Get(ctx, "b")
			require.NoError(t, err)
			j.Status = StatusCompleted
			j.Attempts = 2
			j.CompletedAt = &done
			require.NoError(t, s.Put(ctx, j))

			got, err := s.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, got.Status)
			assert.Equal(t, 2, got.Attempts)
			require.NotNil(t, got.CompletedAt)
			assert.True(t, done.Equal(*got.CompletedAt))
			assert.True(t, got.Terminal())
			assert.True(t, base.Add(time.Minute).Equal(got.CreatedAt))
		})
	}
}

func TestJobStore_SQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := NewSQLiteJobStore(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, &AIJob{ID: "j1", VisitID: "v1", JobType: "estimate", Status: StatusQueued, CreatedAt: time.Now(), UpdatedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteJobStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	queued, err := s.ListByStatus(ctx, StatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "v1", queued[0].VisitID)
}

func TestNewJobStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewJobStore(ctx, config.JobStoreConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryJobStore{}, s)

	_, err = NewJobStore(ctx, config.JobStoreConfig{Type: "etcd"})
	assert.Error(t, err)
}
