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

package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bosmith517/scopekit/internal/queue"
	"github.com/bosmith517/scopekit/internal/syncengine"
	"github.com/bosmith517/scopekit/pkg/log"
)

// Enqueuer 媒体入队（由同步引擎实现）
type Enqueuer interface {
	EnqueueMedia(ctx context.Context, c syncengine.MediaCapture) (*queue.Item, error)
}

// Config inbox 监听配置
type Config struct {
	Inbox    string        // <inbox>/<visitID>/{photos|audio}/<file>
	TenantID string        // 远端路径前缀
	Debounce time.Duration // 合并写入事件，<=0 默认 500ms
}

var kindDirs = map[string]queue.Kind{
	"photos": queue.KindPhoto,
	"audio":  queue.KindAudio,
}

// Watcher 监听 inbox，文件写完稳定后入队并从 inbox 删除
type Watcher struct {
	cfg    Config
	enq    Enqueuer
	logger *log.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq map[string]int // visit/kind -> 下一个序号
}

// NewWatcher 创建 Watcher
func NewWatcher(cfg Config, enq Enqueuer, logger *log.Logger) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &Watcher{
		cfg:    cfg,
		enq:    enq,
		logger: log.OrDefault(logger),
		now:    time.Now,
		seq:    make(map[string]int),
	}
}

// Run 阻塞监听直到 ctx 取消；启动时先处理 inbox 中已有文件
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Inbox, 0o755); err != nil {
		return fmt.Errorf("创建 inbox 失败: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建 fsnotify watcher 失败: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, w.cfg.Inbox); err != nil {
		return err
	}
	if _, err := w.ScanOnce(ctx); err != nil {
		w.logger.Warn("扫描 inbox 失败", "error", err)
	}
	w.logger.Info("inbox 监听已启动", "inbox", w.cfg.Inbox)

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					// 新建的 visit 目录及其子目录
					if err := addTree(fw, ev.Name); err != nil {
						w.logger.Warn("监听新目录失败", "path", ev.Name, "error", err)
					}
					if _, err := w.ScanOnce(ctx); err != nil {
						w.logger.Warn("扫描 inbox 失败", "error", err)
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.cfg.Debounce)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
				delete(pending, p)
			}
			sort.Strings(paths)
			for _, p := range paths {
				if err := w.ingest(ctx, p); err != nil {
					w.logger.Error("采集文件入队失败", "path", p, "error", err)
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("inbox 监听错误", "error", err)
		}
	}
}

// ScanOnce 处理 inbox 中已存在的全部文件，返回入队数量
func (w *Watcher) ScanOnce(ctx context.Context) (int, error) {
	var files []string
	err := filepath.WalkDir(w.cfg.Inbox, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	sort.Strings(files)
	n := 0
	for _, f := range files {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if err := w.ingest(ctx, f); err != nil {
			w.logger.Error("采集文件入队失败", "path", f, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// errSkip 不属于采集布局的文件
var errSkip = errors.New("skip")

func (w *Watcher) ingest(ctx context.Context, path string) error {
	visitID, kind, err := w.classify(path)
	if errors.Is(err, errSkip) {
		return nil
	}
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// 已被先前的事件处理
		return nil
	}
	if err != nil {
		return err
	}

	seq := w.nextSeq(visitID, kind)
	ts := w.now()
	c := syncengine.MediaCapture{VisitID: visitID, Kind: kind, Sequence: seq, Data: data}
	if kind == queue.KindPhoto {
		c.Path = PhotoPath(w.cfg.TenantID, visitID, seq, ts)
	} else {
		c.Path = AudioPath(w.cfg.TenantID, visitID, seq, ts)
	}
	item, err := w.enq.EnqueueMedia(ctx, c)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Warn("删除 inbox 文件失败", "path", path, "error", err)
	}
	w.logger.Debug("采集文件已入队", "file", path, "item_id", item.ID)
	return nil
}

// classify 解析 <inbox>/<visit>/<photos|audio>/<file>
func (w *Watcher) classify(path string) (string, queue.Kind, error) {
	rel, err := filepath.Rel(w.cfg.Inbox, path)
	if err != nil {
		return "", "", errSkip
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return "", "", errSkip
	}
	name := parts[2]
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".part") {
		return "", "", errSkip
	}
	kind, ok := kindDirs[parts[1]]
	if !ok || parts[0] == "" {
		return "", "", errSkip
	}
	return parts[0], kind, nil
}

func (w *Watcher) nextSeq(visitID string, kind queue.Kind) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := visitID + "/" + string(kind)
	n := w.seq[key]
	w.seq[key] = n + 1
	return n
}

func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
