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

package connectivity

import (
	"context"
	"net"
	"time"

	"github.com/bosmith517/scopekit/pkg/log"
)

// Prober 设备级网络探测
type Prober interface {
	Probe(ctx context.Context) error
}

// ProbeFunc 函数适配 Prober
type ProbeFunc func(ctx context.Context) error

// Probe 实现 Prober
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// DialProber 通过 TCP 建连判断是否有网络
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

// Probe 实现 Prober
func (p DialProber) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Detector 周期探测并把结果写入 Monitor
type Detector struct {
	monitor  *Monitor
	prober   Prober
	interval time.Duration
	logger   *log.Logger
}

// NewDetector 创建 Detector；interval<=0 时默认 3s
func NewDetector(m *Monitor, p Prober, interval time.Duration, logger *log.Logger) *Detector {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Detector{monitor: m, prober: p, interval: interval, logger: log.OrDefault(logger)}
}

// Check 执行一次探测并更新状态，返回探测后的状态
func (d *Detector) Check(ctx context.Context) bool {
	err := d.prober.Probe(ctx)
	online := err == nil
	if d.monitor.Set(online) {
		if online {
			d.logger.Info("网络已恢复")
		} else {
			d.logger.Warn("网络已断开", "error", err)
		}
	}
	return online
}

// Run 立即探测一次，之后按 interval 周期探测，直到 ctx 取消
func (d *Detector) Run(ctx context.Context) {
	d.Check(ctx)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Check(ctx)
		}
	}
}
