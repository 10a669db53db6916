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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bosmith517/scopekit/internal/storage/sqlitedb"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

const jobSchema = `
CREATE TABLE IF NOT EXISTS ai_jobs (
    id           TEXT PRIMARY KEY,
    visit_id     TEXT NOT NULL,
    job_type     TEXT NOT NULL,
    status       TEXT NOT NULL,
    attempts     INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    completed_at INTEGER
)`

const jobIndex = `CREATE INDEX IF NOT EXISTS idx_ai_jobs_status ON ai_jobs(status, created_at)`

const jobColumns = `id, visit_id, job_type, status, attempts, error, created_at, updated_at, completed_at`

// SQLiteJobStore ai_jobs 表，可与队列库共用同一文件
type SQLiteJobStore struct {
	db *sql.DB
}

// NewSQLiteJobStore 打开 path 对应的作业库
func NewSQLiteJobStore(ctx context.Context, path string) (*SQLiteJobStore, error) {
	db, err := sqlitedb.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.Migrate(ctx, db, jobSchema, jobIndex); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJobStore{db: db}, nil
}

func (s *SQLiteJobStore) Put(ctx context.Context, job *AIJob) error {
	var completed sql.NullInt64
	if job.CompletedAt != nil {
		completed = sql.NullInt64{Int64: job.CompletedAt.UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ai_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status = excluded.status, attempts = excluded.attempts, error = excluded.error,
    updated_at = excluded.updated_at, completed_at = excluded.completed_at`,
		job.ID, job.VisitID, job.JobType, string(job.Status), job.Attempts, job.Error,
		job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli(), completed)
	if err != nil {
		return fmt.Errorf("写入 ai job %s 失败: %w", job.ID, err)
	}
	return nil
}

func (s *SQLiteJobStore) Get(ctx context.Context, id string) (*AIJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ai_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "ai job %s", id)
	}
	return j, err
}

func (s *SQLiteJobStore) List(ctx context.Context) ([]*AIJob, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM ai_jobs ORDER BY created_at, id`)
}

func (s *SQLiteJobStore) ListByStatus(ctx context.Context, status JobStatus) ([]*AIJob, error) {
	return s.query(ctx, `SELECT `+jobColumns+` FROM ai_jobs WHERE status = ? ORDER BY created_at, id`, string(status))
}

func (s *SQLiteJobStore) query(ctx context.Context, q string, args ...interface{}) ([]*AIJob, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*AIJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteJobStore) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(r scanner) (*AIJob, error) {
	var (
		j                AIJob
		status           string
		created, updated int64
		completed        sql.NullInt64
	)
	if err := r.Scan(&j.ID, &j.VisitID, &j.JobType, &status, &j.Attempts, &j.Error, &created, &updated, &completed); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.UpdatedAt = time.UnixMilli(updated).UTC()
	if completed.Valid {
		t := time.UnixMilli(completed.Int64).UTC()
		j.CompletedAt = &t
	}
	return &j, nil
}
