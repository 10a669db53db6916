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

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS sync_queue_items (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT      NOT NULL UNIQUE,
    visit_id   TEXT      NOT NULL,
    kind       TEXT      NOT NULL,
    data       JSONB     NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PgStore PostgreSQL 实现，供多设备共享网关或服务端回放使用
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 连接 dsn 并确保表存在
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("创建 sync_queue_items 失败: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

// Put 插入或覆盖；覆盖时保留原 seq
func (s *PgStore) Put(ctx context.Context, item *Item) error {
	if err := item.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, err.Error())
	}
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO sync_queue_items (id, visit_id, kind, data) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		item.ID, item.VisitID, string(item.Kind()), data)
	return err
}

// Get 按 id 读取
func (s *PgStore) Get(ctx context.Context, id string) (*Item, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sync_queue_items WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "queue item %s", id)
		}
		return nil, err
	}
	return decodeItem(data)
}

// Remove 幂等删除
func (s *PgStore) Remove(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sync_queue_items WHERE id = $1`, id)
	return err
}

// List 按 seq 升序
func (s *PgStore) List(ctx context.Context) ([]*Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM sync_queue_items ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		it, err := decodeItem(data)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Len 当前项数
func (s *PgStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sync_queue_items`).Scan(&n)
	return n, err
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
