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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bosmith517/scopekit/internal/storage/sqlitedb"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS queue_items (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT    NOT NULL UNIQUE,
    visit_id   TEXT    NOT NULL,
    kind       TEXT    NOT NULL,
    data       TEXT    NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore 基于本地 SQLite 的持久队列；seq 保证插入顺序
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开 path 对应的队列库；无法读取或迁移失败时返回错误
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.Migrate(ctx, db, sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Put 插入或覆盖；覆盖时保留原 seq
func (s *SQLiteStore) Put(ctx context.Context, item *Item) error {
	if err := item.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrInvalidArg, err.Error())
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("序列化队列项失败: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO queue_items (id, visit_id, kind, data) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		item.ID, item.VisitID, string(item.Kind()), string(data))
	if err != nil {
		return fmt.Errorf("写入队列项 %s 失败: %w", item.ID, err)
	}
	return nil
}

// Get 按 id 读取
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Item, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM queue_items WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "queue item %s", id)
	}
	if err != nil {
		return nil, err
	}
	return decodeItem([]byte(data))
}

// Remove 幂等删除
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queue_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("删除队列项 %s 失败: %w", id, err)
	}
	return nil
}

// List 按 seq 升序列出；任一行无法解码即返回错误（库损坏需显式暴露）
func (s *SQLiteStore) List(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM queue_items ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Item
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		it, err := decodeItem([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Len 当前项数
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_items`).Scan(&n)
	return n, err
}

// Close 关闭连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeItem(data []byte) (*Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("队列项损坏: %w", err)
	}
	return &it, nil
}
