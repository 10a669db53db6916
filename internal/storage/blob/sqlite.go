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

package blob

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bosmith517/scopekit/internal/storage/sqlitedb"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blobs (
    id         TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    size       INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore 载荷存于独立 blobs 表，可与队列库共用同一文件
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开 path 对应的 blob 库
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

// Put 写入或覆盖
func (s *SQLiteStore) Put(ctx context.Context, id string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO blobs (id, data, size) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data, size = excluded.size`,
		id, data, len(data))
	if err != nil {
		return fmt.Errorf("写入 blob %s 失败: %w", id, err)
	}
	return nil
}

// Get 读取
func (s *SQLiteStore) Get(ctx context.Context, id string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取 blob %s 失败: %w", id, err)
	}
	return data, true, nil
}

// Remove 幂等删除
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id)
	return err
}

// List 列出 id
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM blobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close 关闭连接
func (s *SQLiteStore) Close() error { return s.db.Close() }
