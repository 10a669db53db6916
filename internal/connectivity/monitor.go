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

// Package connectivity 设备级在线/离线状态与变化通知。
// 这里的“在线”只代表设备报告有网络，不代表远端服务可达。
package connectivity

import (
	"sync"

	"github.com/bosmith517/scopekit/pkg/metrics"
)

// Monitor 跟踪在线状态；每次实际变化恰好通知一次，同状态重复 Set 不通知
type Monitor struct {
	// emitMu 串行化状态变化与订阅，保证订阅者按发生顺序收到通知
	emitMu sync.Mutex
	mu     sync.RWMutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// NewMonitor 以 initial 为初始状态创建 Monitor
func NewMonitor(initial bool) *Monitor {
	metrics.BoolGauge(metrics.Online, initial)
	return &Monitor{online: initial, subs: make(map[int]func(bool))}
}

// Online 当前状态
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set 更新状态；发生变化时同步通知所有订阅者并返回 true。
// 订阅回调中不得再调用 Set。
func (m *Monitor) Set(online bool) bool {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	metrics.BoolGauge(metrics.Online, online)
	for _, fn := range fns {
		fn(online)
	}
	return true
}

// Subscribe 注册回调，并立即以当前状态调用一次；返回取消函数（可重复调用）
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	current := m.online
	m.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}
