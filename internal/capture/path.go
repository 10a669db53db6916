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

// Package capture 采集侧：远端对象路径约定与 inbox 目录监听入队
package capture

import (
	"fmt"
	"time"
)

// PhotoPath {tenant}/{visit}/photos/photo_{seq}_{ts}.jpg
func PhotoPath(tenantID, visitID string, seq int, ts time.Time) string {
	return fmt.Sprintf("%s/%s/photos/photo_%d_%d.jpg", tenantID, visitID, seq, ts.UnixMilli())
}

// AudioPath {tenant}/{visit}/audio/chunk_{n}_{ts}.webm
func AudioPath(tenantID, visitID string, chunk int, ts time.Time) string {
	return fmt.Sprintf("%s/%s/audio/chunk_%d_%d.webm", tenantID, visitID, chunk, ts.UnixMilli())
}
