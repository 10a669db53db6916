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

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bosmith517/scopekit/internal/storage/sqlitedb"
	pkgerrors "github.com/bosmith517/scopekit/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0
)`

// SQLiteStore 持久缓存，设备重启后仍可离线查看估算
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore 打开 path 对应的缓存库
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.Migrate(ctx, db, sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Set 设置缓存
func (s *SQLiteStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	var exp int64
	if ttl > 0 {
		exp = s.now().Add(ttl).UnixMilli()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, string(data), exp)
	return err
}

// Get 获取缓存
func (s *SQLiteStore) Get(ctx context.Context, key string, dest interface{}) error {
	var data string
	var exp int64
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM cache_entries WHERE key = ?`, key).Scan(&data, &exp)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && exp > 0 && s.now().UnixMilli() >= exp) {
		return pkgerrors.Wrapf(pkgerrors.ErrNotFound, "cache key %s", key)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return err
}

// Exists 检查缓存是否存在
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	var exp int64
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM cache_entries WHERE key = ?`, key).Scan(&exp)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return exp == 0 || s.now().UnixMilli() < exp, nil
}

// Close 关闭连接
func (s *SQLiteStore) Close() error { return s.db.Close() }
